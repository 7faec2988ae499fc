// Package kernel is the kernel call surface of the fiber kernel.
//
// A Kernel owns the root job and exposes one method per kernel call. Every
// call receives a context.Context whose scope names the calling process;
// handle values are resolved in that process's handle table and every
// rights check uses the rights of the handle being dereferenced.
//
// Processes run as goroutines. ProcessStart runs an Entry with a context
// scoped to the new process and canceled when the process is killed:
//
//	k, _ := kernel.New(cfg)
//	_, err := k.Boot(ctx, func(ctx context.Context, bootstrap sys.HandleValue) {
//		msg, _ := k.ReadBootstrap(ctx, bootstrap)
//		h, _, _ := k.JobCreate(ctx, msg.RootJob, 0)
//		...
//	})
//
// The core never blocks. Callers that need to wait for a channel use
// ObjectPollReadable or register a SignalObserver with ObjectWaitAsync.
package kernel
