package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/shared/id"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Entry is the code a started process runs. ctx is scoped to the process and
// canceled when it is killed. Returning is the same as exiting with code 0.
type Entry func(ctx context.Context, arg sys.HandleValue)

// Kernel owns one job tree and the resources shared by its objects.
type Kernel struct {
	cfg     config.KernelConfig
	bootID  id.BootID
	logger  *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	pool    *object.BufferPool

	rootJob       *object.JobDispatcher
	rootJobHandle *object.Handle

	baseCtx context.Context
	cancel  context.CancelFunc
	entries sync.WaitGroup

	booted   atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) { k.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(k *Kernel) { k.metrics = metrics }
}

// WithTracer sets the kernel trace ring.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(k *Kernel) { k.tracer = tracer }
}

// WithBootID fixes the boot id instead of generating one.
func WithBootID(bootID id.BootID) Option {
	return func(k *Kernel) { k.bootID = bootID }
}

// New creates a kernel with an empty root job. A nil cfg means
// config.Default().
func New(cfg *config.Config, opts ...Option) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel config: %w", err)
	}

	k := &Kernel{
		cfg:  cfg.Kernel,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.bootID == "" {
		k.bootID = id.NewBootID()
	}
	bootTime, err := k.bootID.Time()
	if err != nil {
		return nil, fmt.Errorf("kernel boot id: %w", err)
	}
	if k.logger == nil {
		k.logger = zap.NewNop()
	}
	if k.metrics == nil {
		k.metrics = monitoring.NewMetrics()
	}
	if k.tracer == nil {
		k.tracer = tracing.New(k.cfg.TraceCapacity, k.logger)
	}
	k.pool = object.NewBufferPool(k.cfg.MaxMessageBuffers)

	err = k.metrics.RegisterGaugeFunc("fiber_handles_live", "Handles alive across all kernels in the process", nil,
		func() float64 { return float64(object.LiveHandleCount()) })
	if err == nil {
		err = k.metrics.RegisterGaugeFunc("fiber_message_buffers_outstanding", "Message buffers currently allocated",
			map[string]string{"boot_id": k.bootID.String()},
			func() float64 { return float64(k.pool.Outstanding()) })
	}
	if err != nil {
		return nil, err
	}
	k.baseCtx, k.cancel = context.WithCancel(context.Background())

	k.rootJob = object.NewRootJob(k.cfg.RootJobMaxHeight)
	k.rootJobHandle = object.Make(object.NewKernelHandle(k.rootJob), sys.DefaultJobRights)

	k.tracer.Record(tracing.TagBoot, k.rootJob.Koid(), sys.KoidInvalid, k.bootID.String(), int64(k.cfg.RootJobMaxHeight))
	k.logger.Info("kernel created",
		zap.String("boot_id", k.bootID.String()),
		zap.Time("boot_time", bootTime),
		zap.Uint64("root_job", uint64(k.rootJob.Koid())),
		zap.Uint32("root_max_height", k.cfg.RootJobMaxHeight),
	)
	return k, nil
}

func (k *Kernel) BootID() id.BootID { return k.bootID }

func (k *Kernel) RootJob() *object.JobDispatcher { return k.rootJob }

func (k *Kernel) Metrics() *monitoring.Metrics { return k.metrics }

func (k *Kernel) Tracer() *tracing.Tracer { return k.tracer }

// Done is closed once the root job has no children left after boot, or the
// kernel has shut down.
func (k *Kernel) Done() <-chan struct{} { return k.done }

func (k *Kernel) closeDone(reason string) {
	k.doneOnce.Do(func() {
		k.logger.Info("kernel done", zap.String("reason", reason))
		close(k.done)
	})
}

// Shutdown kills every task and waits for process entries to return.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.rootJob.Kill(sys.TaskRetcodeSyscallKill)
	k.cancel()

	returned := make(chan struct{})
	go func() {
		k.entries.Wait()
		close(returned)
	}()

	select {
	case <-returned:
	case <-ctx.Done():
		return fmt.Errorf("waiting for process entries: %w", ctx.Err())
	}
	k.closeDone("shutdown")
	return nil
}

// RunInProcess runs fn as process p. A ProcessExit inside fn ends fn early
// and RunInProcess returns nil.
func (k *Kernel) RunInProcess(ctx context.Context, p *object.ProcessDispatcher, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(processExit); !ok {
				panic(r)
			}
			err = nil
		}
	}()
	return scope.Run(ctx, p, fn)
}

// processExit unwinds a process entry after ProcessExit.
type processExit struct {
	code int64
}

func (k *Kernel) runEntry(ctx context.Context, p *object.ProcessDispatcher, entry Entry, arg sys.HandleValue) {
	defer k.entries.Done()
	defer p.ThreadExited()
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(processExit); ok {
				return
			}
			k.logger.Error("process entry panicked",
				zap.Uint64("koid", uint64(p.Koid())),
				zap.String("name", p.Name()),
				zap.Any("panic", r),
			)
			p.Kill(sys.TaskRetcodeExceptionKill)
		}
	}()
	entry(scope.With(ctx, p), arg)
}

func (k *Kernel) processOptions() object.ProcessOptions {
	return object.ProcessOptions{
		Table: object.HandleTableOptions{
			MaxHandles:   k.cfg.MaxHandles,
			WarnInterval: k.cfg.HandleWarnInterval,
			Logger:       k.logger,
		},
	}
}

func (k *Kernel) channelOptions() object.ChannelOptions {
	return object.ChannelOptions{MaxPendingMessages: k.cfg.MaxPendingMessages}
}

// syscall times a kernel call and applies the caller's bad handle and wrong
// object policies once the call has released its locks.
func (k *Kernel) syscall(ctx context.Context, name string) func(*error) {
	timer := monitoring.NewTimer(k.metrics, name)
	return func(errp *error) {
		status := sys.StatusOf(*errp)
		timer.Stop(status.String())

		var cond sys.PolicyCondition
		switch status {
		case sys.ErrBadHandle:
			cond = sys.PolicyBadHandle
		case sys.ErrWrongType:
			cond = sys.PolicyWrongObject
		default:
			return
		}
		if p, ok := scope.Lookup(ctx); ok {
			_ = k.enforce(p, cond)
		}
	}
}

func (k *Kernel) enforce(p *object.ProcessDispatcher, cond sys.PolicyCondition) error {
	action, err := p.EnforceBasicPolicy(cond)
	if err == nil {
		return nil
	}
	k.metrics.RecordPolicyViolation(cond.String(), action.String())
	k.tracer.Record(tracing.TagPolicy, p.Koid(), p.Job().Koid(), cond.String(), int64(action))
	k.logger.Info("policy violation",
		zap.Uint64("koid", uint64(p.Koid())),
		zap.String("condition", cond.String()),
		zap.String("action", action.String()),
	)
	return err
}

// watchProcess records the process's end in metrics and the trace.
func (k *Kernel) watchProcess(p *object.ProcessDispatcher) {
	p.AddObserver(&exitObserver{k: k, p: p, created: time.Now()}, sys.SignalTaskTerminated)
}

type exitObserver struct {
	k       *Kernel
	p       *object.ProcessDispatcher
	created time.Time
}

func (o *exitObserver) OnMatch(sys.Signals) {
	code := o.p.ReturnCode()
	reason := "exited"
	switch code {
	case sys.TaskRetcodeSyscallKill:
		reason = "killed"
	case sys.TaskRetcodePolicyKill:
		reason = "policy"
	case sys.TaskRetcodeExceptionKill:
		reason = "exception"
	}
	o.k.metrics.RecordProcessExit(reason)
	o.k.tracer.Record(tracing.TagProcExit, o.p.Koid(), o.p.Job().Koid(), o.p.Name(), code)
	o.k.logger.Debug("process dead",
		zap.Uint64("koid", uint64(o.p.Koid())),
		zap.String("name", o.p.Name()),
		zap.Int64("return_code", code),
		zap.Duration("lifetime", time.Since(o.created)),
	)
}

func (o *exitObserver) OnCancel(sys.Signals) {}
