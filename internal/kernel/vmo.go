package kernel

import (
	"context"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// VmoCreate creates a zero filled VMO of at least size bytes.
func (k *Kernel) VmoCreate(ctx context.Context, size uint64, options uint32) (out sys.HandleValue, err error) {
	defer k.syscall(ctx, "vmo_create")(&err)
	caller := scope.Current(ctx)

	if err := k.enforce(caller, sys.PolicyNewVMO); err != nil {
		return sys.HandleInvalid, err
	}
	kh, rights, err := object.CreateVMO(size, object.VMOOptions{Flags: options, MaxSize: k.cfg.MaxVMOSize})
	if err != nil {
		return sys.HandleInvalid, err
	}
	v := kh.Dispatcher()
	out, err = k.install(caller, object.Make(kh, rights))
	if err != nil {
		return sys.HandleInvalid, err
	}

	k.metrics.RecordObjectCreated(sys.ObjTypeVMO.String())
	k.tracer.Record(tracing.TagVMOCreate, v.Koid(), caller.Koid(), "", int64(v.Size()))
	return out, nil
}

func (k *Kernel) VmoRead(ctx context.Context, h sys.HandleValue, dst []byte, offset uint64) (err error) {
	defer k.syscall(ctx, "vmo_read")(&err)
	v, _, err := object.GetDispatcherAs[*object.VMODispatcher](scope.Current(ctx).HandleTable(), h, sys.RightRead)
	if err != nil {
		return err
	}
	return v.Read(dst, offset)
}

func (k *Kernel) VmoWrite(ctx context.Context, h sys.HandleValue, src []byte, offset uint64) (err error) {
	defer k.syscall(ctx, "vmo_write")(&err)
	v, _, err := object.GetDispatcherAs[*object.VMODispatcher](scope.Current(ctx).HandleTable(), h, sys.RightWrite)
	if err != nil {
		return err
	}
	return v.Write(src, offset)
}

func (k *Kernel) VmoGetSize(ctx context.Context, h sys.HandleValue) (size uint64, err error) {
	defer k.syscall(ctx, "vmo_get_size")(&err)
	v, _, err := object.GetDispatcherAs[*object.VMODispatcher](scope.Current(ctx).HandleTable(), h, sys.RightNone)
	if err != nil {
		return 0, err
	}
	return v.Size(), nil
}

// VmoSetSize resizes a VMO created with sys.VmoResizable.
func (k *Kernel) VmoSetSize(ctx context.Context, h sys.HandleValue, size uint64) (err error) {
	defer k.syscall(ctx, "vmo_set_size")(&err)
	v, _, err := object.GetDispatcherAs[*object.VMODispatcher](scope.Current(ctx).HandleTable(), h, sys.RightWrite)
	if err != nil {
		return err
	}
	return v.SetSize(size)
}
