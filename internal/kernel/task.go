package kernel

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// JobCreate creates a child of the job behind parent and returns its handle
// with the rights it carries. The parent handle needs RightManageJob.
func (k *Kernel) JobCreate(ctx context.Context, parent sys.HandleValue, options uint32) (out sys.HandleValue, rights sys.Rights, err error) {
	defer k.syscall(ctx, "job_create")(&err)
	caller := scope.Current(ctx)

	job, _, err := object.GetDispatcherAs[*object.JobDispatcher](caller.HandleTable(), parent, sys.RightManageJob)
	if err != nil {
		return sys.HandleInvalid, 0, err
	}
	kh, rights, err := object.CreateJob(job, options)
	if err != nil {
		return sys.HandleInvalid, 0, err
	}
	child := kh.Dispatcher()
	out, err = k.install(caller, object.Make(kh, rights))
	if err != nil {
		return sys.HandleInvalid, 0, err
	}

	k.metrics.RecordObjectCreated(sys.ObjTypeJob.String())
	k.tracer.Record(tracing.TagJobCreate, child.Koid(), job.Koid(), "", int64(child.MaxHeight()))
	return out, rights, nil
}

// JobSetPolicy applies basic policies to a job that has no children yet.
func (k *Kernel) JobSetPolicy(ctx context.Context, h sys.HandleValue, options, topic uint32, policies []sys.PolicyBasic) (err error) {
	defer k.syscall(ctx, "job_set_policy")(&err)
	caller := scope.Current(ctx)

	job, _, err := object.GetDispatcherAs[*object.JobDispatcher](caller.HandleTable(), h, sys.RightSetPolicy)
	if err != nil {
		return err
	}
	if topic != sys.PolicyTopicBasic || len(policies) == 0 || len(policies) > sys.PolicyConditionMax {
		return sys.ErrInvalidArgs
	}
	return job.SetBasicPolicy(options, policies)
}

// ProcessCreate creates an unstarted process in the job behind jobH. The job
// handle needs RightManageProcess and the caller's policy must allow
// PolicyNewProcess.
func (k *Kernel) ProcessCreate(ctx context.Context, jobH sys.HandleValue, name string, options uint32) (out sys.HandleValue, err error) {
	defer k.syscall(ctx, "process_create")(&err)
	caller := scope.Current(ctx)

	job, _, err := object.GetDispatcherAs[*object.JobDispatcher](caller.HandleTable(), jobH, sys.RightManageProcess)
	if err != nil {
		return sys.HandleInvalid, err
	}
	if err := k.enforce(caller, sys.PolicyNewProcess); err != nil {
		return sys.HandleInvalid, err
	}
	kh, rights, err := object.CreateProcess(job, name, options, k.processOptions())
	if err != nil {
		return sys.HandleInvalid, err
	}
	p := kh.Dispatcher()
	k.watchProcess(p)
	out, err = k.install(caller, object.Make(kh, rights))
	if err != nil {
		return sys.HandleInvalid, err
	}

	k.metrics.RecordObjectCreated(sys.ObjTypeProcess.String())
	k.tracer.Record(tracing.TagProcCreate, p.Koid(), job.Koid(), p.Name(), 0)
	return out, nil
}

// ProcessStart runs entry as the process behind h. The process handle needs
// RightWrite. A valid arg is moved from the caller into the new process and
// needs RightTransfer; entry receives its value there. On failure arg stays
// with the caller.
func (k *Kernel) ProcessStart(ctx context.Context, h sys.HandleValue, entry Entry, arg sys.HandleValue) (err error) {
	defer k.syscall(ctx, "process_start")(&err)
	caller := scope.Current(ctx)
	table := caller.HandleTable()

	p, _, err := object.GetDispatcherAs[*object.ProcessDispatcher](table, h, sys.RightWrite)
	if err != nil {
		return err
	}
	if entry == nil {
		return sys.ErrInvalidArgs
	}

	var (
		procCtx   context.Context
		argHandle *object.Handle
	)
	err = table.WithLock(func(lt object.LockedTable) error {
		if arg != sys.HandleInvalid {
			ah, ok := lt.Get(arg)
			if !ok {
				return sys.ErrBadHandle
			}
			if !ah.HasRights(sys.RightTransfer) {
				return sys.ErrAccessDenied
			}
			argHandle = ah
		}
		c, err := p.Start(k.baseCtx)
		if err != nil {
			return err
		}
		procCtx = c
		if argHandle != nil {
			lt.Remove(arg)
		}
		return nil
	})
	if err != nil {
		return err
	}

	argValue := sys.HandleInvalid
	if argHandle != nil {
		if argValue, err = p.HandleTable().AddHandle(argHandle); err != nil {
			argHandle.Release()
			p.Kill(sys.TaskRetcodeSyscallKill)
			p.ThreadExited()
			return err
		}
	}

	k.tracer.Record(tracing.TagProcStart, p.Koid(), p.Job().Koid(), p.Name(), int64(argValue))
	k.logger.Debug("process started",
		zap.Uint64("koid", uint64(p.Koid())),
		zap.String("name", p.Name()),
		zap.Uint64("job", uint64(p.Job().Koid())),
	)
	k.entries.Add(1)
	go k.runEntry(procCtx, p, entry, argValue)
	return nil
}

// ProcessExit ends the calling process with code. It does not return: the
// calling goroutine unwinds to its process entry, or to RunInProcess.
func (k *Kernel) ProcessExit(ctx context.Context, code int64) {
	defer k.syscall(ctx, "process_exit")(new(error))
	caller := scope.Current(ctx)
	caller.Exit(code)
	panic(processExit{code: code})
}

// TaskKill kills the job or process behind h, which needs RightDestroy.
// Killing the calling process does not return.
func (k *Kernel) TaskKill(ctx context.Context, h sys.HandleValue) (err error) {
	defer k.syscall(ctx, "task_kill")(&err)
	caller := scope.Current(ctx)

	handle, ok := caller.HandleTable().GetHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	switch handle.Dispatcher().(type) {
	case *object.JobDispatcher, *object.ProcessDispatcher:
	default:
		return sys.ErrWrongType
	}
	if !handle.HasRights(sys.RightDestroy) {
		return sys.ErrAccessDenied
	}

	switch task := handle.Dispatcher().(type) {
	case *object.JobDispatcher:
		if task.Kill(sys.TaskRetcodeSyscallKill) {
			k.tracer.Record(tracing.TagJobKill, task.Koid(), task.RelatedKoid(), task.Name(), sys.TaskRetcodeSyscallKill)
		}
	case *object.ProcessDispatcher:
		task.Kill(sys.TaskRetcodeSyscallKill)
		k.tracer.Record(tracing.TagProcKill, task.Koid(), task.Job().Koid(), task.Name(), sys.TaskRetcodeSyscallKill)
		if task == caller {
			panic(processExit{code: sys.TaskRetcodeSyscallKill})
		}
	}
	return nil
}

// install adds a freshly made handle to the caller's table, releasing it if
// the table is full.
func (k *Kernel) install(caller *object.ProcessDispatcher, h *object.Handle) (sys.HandleValue, error) {
	v, err := caller.HandleTable().AddHandle(h)
	if err != nil {
		h.Release()
		return sys.HandleInvalid, err
	}
	return v, nil
}
