package kernel

import (
	"context"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel/object"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel/scope"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// HandleClose removes h from the caller's table and releases it. Closing
// HandleInvalid is a no-op.
func (k *Kernel) HandleClose(ctx context.Context, h sys.HandleValue) (err error) {
	defer k.syscall(ctx, "handle_close")(&err)
	caller := scope.Current(ctx)

	if h == sys.HandleInvalid {
		return nil
	}
	handle, ok := caller.HandleTable().RemoveHandle(h)
	if !ok {
		return sys.ErrBadHandle
	}
	handle.Release()
	return nil
}

// HandleDuplicate adds a second handle to the same object with rights, which
// must be RightSameRights or a subset of the source rights. The source needs
// RightDuplicate.
func (k *Kernel) HandleDuplicate(ctx context.Context, h sys.HandleValue, rights sys.Rights) (out sys.HandleValue, err error) {
	defer k.syscall(ctx, "handle_duplicate")(&err)
	caller := scope.Current(ctx)

	var dropped *object.Handle
	err = caller.HandleTable().WithLock(func(lt object.LockedTable) error {
		src, ok := lt.Get(h)
		if !ok {
			return sys.ErrBadHandle
		}
		dup, err := object.Duplicate(src, rights)
		if err != nil {
			return err
		}
		v, err := lt.Add(dup)
		if err != nil {
			dropped = dup
			return err
		}
		out = v
		return nil
	})
	if dropped != nil {
		dropped.Release()
	}
	if err != nil {
		return sys.HandleInvalid, err
	}
	return out, nil
}

// HandleReplace swaps h for a new handle with rights. On success h is no
// longer valid; on failure it is left untouched. No right is required on h.
func (k *Kernel) HandleReplace(ctx context.Context, h sys.HandleValue, rights sys.Rights) (out sys.HandleValue, err error) {
	defer k.syscall(ctx, "handle_replace")(&err)
	caller := scope.Current(ctx)

	var replaced *object.Handle
	err = caller.HandleTable().WithLock(func(lt object.LockedTable) error {
		src, ok := lt.Get(h)
		if !ok {
			return sys.ErrBadHandle
		}
		if rights == sys.RightSameRights {
			rights = src.Rights()
		} else if !rights.IsSubsetOf(src.Rights()) {
			return sys.ErrInvalidArgs
		}

		lt.Remove(h)
		dup := object.Dup(src, rights)
		v, err := lt.Add(dup)
		if err != nil {
			lt.Restore(h, src)
			replaced = dup
			return err
		}
		replaced = src
		out = v
		return nil
	})
	if replaced != nil {
		replaced.Release()
	}
	if err != nil {
		return sys.HandleInvalid, err
	}
	return out, nil
}
