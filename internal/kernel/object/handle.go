package object

import (
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// KernelHandle is the single owner of a freshly created dispatcher before any
// Handle exists for it. Release it on every path that does not reach Make:
//
//	kh, rights, err := CreateChannel(opts)
//	defer kh.Release()
//	h := Make(kh, rights) // Release is now a no-op
type KernelHandle[T Dispatcher] struct {
	dispatcher T
	held       bool
}

func NewKernelHandle[T Dispatcher](d T) *KernelHandle[T] {
	return &KernelHandle[T]{dispatcher: d, held: true}
}

func (kh *KernelHandle[T]) Dispatcher() T { return kh.dispatcher }

// Release gives up ownership. If no Handle was ever made from the dispatcher,
// its zero-handles cleanup runs.
func (kh *KernelHandle[T]) Release() {
	if kh == nil || !kh.held {
		return
	}
	kh.held = false
	if kh.dispatcher.HandleCount() == 0 {
		kh.dispatcher.onZeroHandles()
	}
}

func (kh *KernelHandle[T]) take() T {
	if !kh.held {
		panic("object: kernel handle used after release")
	}
	kh.held = false
	return kh.dispatcher
}

// Handle is a capability: one reference to a dispatcher plus the rights it
// grants. A Handle sits in at most one HandleTable or MessagePacket.
type Handle struct {
	processID  atomic.Uint64
	dispatcher Dispatcher
	rights     sys.Rights
	released   atomic.Bool

	// baseValue is the unmixed table slot encoding, guarded by the lock of
	// the table holding the handle.
	baseValue uint32
}

// Make upgrades a kernel handle into the first Handle for its dispatcher.
func Make[T Dispatcher](kh *KernelHandle[T], rights sys.Rights) *Handle {
	return newHandle(kh.take(), rights)
}

// Duplicate creates a second handle to the same object. The source must carry
// RightDuplicate and rights must be a subset of the source rights;
// sys.RightSameRights copies them.
func Duplicate(src *Handle, rights sys.Rights) (*Handle, error) {
	if !src.HasRights(sys.RightDuplicate) {
		return nil, sys.ErrAccessDenied
	}
	if rights == sys.RightSameRights {
		rights = src.rights
	} else if !rights.IsSubsetOf(src.rights) {
		return nil, sys.ErrInvalidArgs
	}
	return Dup(src, rights), nil
}

// Dup creates a handle with exactly the given rights without checking them.
// Kernel paths that have already validated the request use it.
func Dup(src *Handle, rights sys.Rights) *Handle {
	return newHandle(src.dispatcher, rights)
}

func newHandle(d Dispatcher, rights sys.Rights) *Handle {
	d.base().handleCount.Add(1)
	liveHandles.Add(1)
	return &Handle{dispatcher: d, rights: rights}
}

func (h *Handle) Dispatcher() Dispatcher { return h.dispatcher }

func (h *Handle) Rights() sys.Rights { return h.rights }

func (h *Handle) HasRights(required sys.Rights) bool { return h.rights.Has(required) }

// ProcessID is the koid of the process whose table holds the handle, or
// sys.KoidInvalid while the handle is in flight.
func (h *Handle) ProcessID() sys.Koid { return sys.Koid(h.processID.Load()) }

// Release destroys the handle. When it was the last handle to its object the
// object's zero-handles cleanup runs on the calling goroutine.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		panic("object: handle released twice")
	}
	liveHandles.Add(-1)
	if h.dispatcher.base().handleCount.Add(^uint32(0)) == 0 {
		h.dispatcher.onZeroHandles()
	}
}
