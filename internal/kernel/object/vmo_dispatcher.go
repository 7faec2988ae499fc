package object

import (
	"sync"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// PageSize is the granularity of VMO sizes.
const PageSize = 4096

// VMOOptions configures CreateVMO.
type VMOOptions struct {
	Flags uint32
	// MaxSize bounds the size the VMO may ever have.
	MaxSize uint64
}

// VMODispatcher is a memory object exposed as a byte range. Sizes are
// rounded up to whole pages and new pages read as zero.
type VMODispatcher struct {
	BaseDispatcher

	resizable bool
	maxSize   uint64

	mu   sync.RWMutex
	data []byte
}

func roundUpPage(size uint64) (uint64, bool) {
	rounded := (size + PageSize - 1) &^ (PageSize - 1)
	return rounded, rounded >= size
}

// CreateVMO creates a VMO of at least size bytes.
func CreateVMO(size uint64, opts VMOOptions) (*KernelHandle[*VMODispatcher], sys.Rights, error) {
	if opts.Flags&^sys.VmoResizable != 0 {
		return nil, sys.RightNone, sys.ErrInvalidArgs
	}
	rounded, ok := roundUpPage(size)
	if !ok || (opts.MaxSize > 0 && rounded > opts.MaxSize) {
		return nil, sys.RightNone, sys.ErrOutOfRange
	}

	v := &VMODispatcher{
		resizable: opts.Flags&sys.VmoResizable != 0,
		maxSize:   opts.MaxSize,
		data:      make([]byte, rounded),
	}
	v.init(sys.ObjTypeVMO, sys.SignalNone)
	return NewKernelHandle(v), sys.DefaultVMORights, nil
}

func (*VMODispatcher) Type() sys.ObjType { return sys.ObjTypeVMO }

func (*VMODispatcher) DefaultRights() sys.Rights { return sys.DefaultVMORights }

func (*VMODispatcher) RelatedKoid() sys.Koid { return sys.KoidInvalid }

func (v *VMODispatcher) Size() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return uint64(len(v.data))
}

func (v *VMODispatcher) Resizable() bool { return v.resizable }

func (v *VMODispatcher) checkRange(offset uint64, n int) bool {
	end := offset + uint64(n)
	return end >= offset && end <= uint64(len(v.data))
}

// Read copies len(dst) bytes starting at offset.
func (v *VMODispatcher) Read(dst []byte, offset uint64) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.checkRange(offset, len(dst)) {
		return sys.ErrOutOfRange
	}
	copy(dst, v.data[offset:])
	return nil
}

// Write copies src into the VMO starting at offset.
func (v *VMODispatcher) Write(src []byte, offset uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.checkRange(offset, len(src)) {
		return sys.ErrOutOfRange
	}
	copy(v.data[offset:], src)
	return nil
}

// SetSize resizes a resizable VMO. Shrinking discards the tail.
func (v *VMODispatcher) SetSize(size uint64) error {
	if !v.resizable {
		return sys.ErrUnavailable
	}
	rounded, ok := roundUpPage(size)
	if !ok || (v.maxSize > 0 && rounded > v.maxSize) {
		return sys.ErrOutOfRange
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	switch cur := uint64(len(v.data)); {
	case rounded < cur:
		clear(v.data[rounded:])
		v.data = v.data[:rounded]
	case rounded > cur:
		v.data = append(v.data, make([]byte, rounded-cur)...)
	}
	return nil
}

func (v *VMODispatcher) onZeroHandles() {
	v.mu.Lock()
	v.data = nil
	v.mu.Unlock()
	v.cancelObservers()
}
