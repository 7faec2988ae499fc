package object

import (
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Handle value layout, before mixing:
//
//	bit 31..20  slot generation
//	bit 19..2   slot index
//	bit 1..0    always 1
const (
	handleReservedBits    = 2
	handleMustBeOne       = 1<<handleReservedBits - 1
	MaxHandleSlots        = 256 * 1024
	handleIndexMask       = MaxHandleSlots - 1
	handleGenerationShift = 18
	handleGenerationBits  = 32 - handleReservedBits - handleGenerationShift
	handleGenerationMask  = (1<<handleGenerationBits - 1) << handleGenerationShift
)

// HandleTableOptions configures a HandleTable.
type HandleTableOptions struct {
	// MaxHandles caps the live handles; zero or anything above
	// MaxHandleSlots means MaxHandleSlots.
	MaxHandles int
	// WarnInterval throttles the high handle count warning.
	WarnInterval time.Duration
	Logger       *zap.Logger
}

type handleSlot struct {
	handle     *Handle
	generation uint32
}

// HandleTable maps process-local handle values to Handles.
type HandleTable struct {
	mu    sync.RWMutex
	owner sys.Koid
	mixer uint32

	slots []handleSlot
	free  []uint32
	count int

	maxHandles int
	warnAt     int
	warn       *rate.Limiter
	logger     *zap.Logger
}

// NewHandleTable creates an empty table owned by the process with koid owner.
func NewHandleTable(owner sys.Koid, opts HandleTableOptions) *HandleTable {
	limit := opts.MaxHandles
	if limit <= 0 || limit > MaxHandleSlots {
		limit = MaxHandleSlots
	}
	interval := opts.WarnInterval
	if interval <= 0 {
		interval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandleTable{
		owner:      owner,
		mixer:      rand.Uint32() &^ handleMustBeOne,
		maxHandles: limit,
		warnAt:     limit - limit/8,
		warn:       rate.NewLimiter(rate.Every(interval), 1),
		logger:     logger,
	}
}

// Owner is the koid of the owning process.
func (t *HandleTable) Owner() sys.Koid { return t.owner }

func (t *HandleTable) encode(base uint32) sys.HandleValue {
	return sys.HandleValue((base<<handleReservedBits | handleMustBeOne) ^ t.mixer)
}

func (t *HandleTable) decode(v sys.HandleValue) (index, generation uint32, ok bool) {
	if v == sys.HandleInvalid {
		return 0, 0, false
	}
	raw := uint32(v) ^ t.mixer
	if raw&handleMustBeOne != handleMustBeOne {
		return 0, 0, false
	}
	base := raw >> handleReservedBits
	return base & handleIndexMask, (base & handleGenerationMask) >> handleGenerationShift, true
}

func (t *HandleTable) lookupLocked(v sys.HandleValue) (*Handle, uint32, bool) {
	index, generation, ok := t.decode(v)
	if !ok || int(index) >= len(t.slots) {
		return nil, 0, false
	}
	s := &t.slots[index]
	if s.handle == nil || s.generation != generation {
		return nil, 0, false
	}
	return s.handle, index, true
}

func (t *HandleTable) addLocked(h *Handle) (sys.HandleValue, error) {
	if t.count >= t.maxHandles {
		return sys.HandleInvalid, sys.ErrNoMemory
	}

	var index uint32
	if n := len(t.free); n > 0 {
		index = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		index = uint32(len(t.slots))
		t.slots = append(t.slots, handleSlot{})
	}

	s := &t.slots[index]
	s.generation = (s.generation + 1) & (1<<handleGenerationBits - 1)
	if s.generation == 0 {
		s.generation = 1
	}
	s.handle = h
	h.baseValue = index | s.generation<<handleGenerationShift
	h.processID.Store(uint64(t.owner))
	if c, ok := h.dispatcher.(*ChannelDispatcher); ok {
		c.setOwner(t.owner)
	}
	t.count++

	if t.count >= t.warnAt && t.warn.Allow() {
		t.logger.Warn("high handle count",
			zap.Uint64("process_koid", uint64(t.owner)),
			zap.Int("count", t.count),
			zap.Int("limit", t.maxHandles),
		)
	}
	return t.encode(h.baseValue), nil
}

func (t *HandleTable) removeLocked(v sys.HandleValue) (*Handle, bool) {
	h, index, ok := t.lookupLocked(v)
	if !ok {
		return nil, false
	}
	t.slots[index].handle = nil
	t.free = append(t.free, index)
	t.count--
	h.processID.Store(uint64(sys.KoidInvalid))
	if c, ok := h.dispatcher.(*ChannelDispatcher); ok {
		c.setOwner(sys.KoidInvalid)
	}
	return h, true
}

// restoreLocked puts h back under the value it was removed from. Restores
// must happen in reverse order of removal with no adds in between.
func (t *HandleTable) restoreLocked(v sys.HandleValue, h *Handle) {
	index, generation, ok := t.decode(v)
	n := len(t.free)
	if !ok || n == 0 || t.free[n-1] != index || t.slots[index].generation != generation {
		panic("object: handle restore out of order")
	}
	t.free = t.free[:n-1]
	t.slots[index].handle = h
	t.count++
	h.processID.Store(uint64(t.owner))
	if c, ok := h.dispatcher.(*ChannelDispatcher); ok {
		c.setOwner(t.owner)
	}
}

// AddHandle takes ownership of h and returns its new value. A full table
// fails with ErrNoMemory and leaves h with the caller.
func (t *HandleTable) AddHandle(h *Handle) (sys.HandleValue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addLocked(h)
}

// GetHandle resolves v without transferring ownership.
func (t *HandleTable) GetHandle(v sys.HandleValue) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, _, ok := t.lookupLocked(v)
	return h, ok
}

// RemoveHandle detaches the handle named by v and hands it to the caller.
func (t *HandleTable) RemoveHandle(v sys.HandleValue) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(v)
}

// MapHandleToValue returns the value naming h in this table, or
// sys.HandleInvalid if the table does not hold h.
func (t *HandleTable) MapHandleToValue(h *Handle) sys.HandleValue {
	t.mu.RLock()
	defer t.mu.RUnlock()
	index := h.baseValue & handleIndexMask
	if int(index) >= len(t.slots) || t.slots[index].handle != h {
		return sys.HandleInvalid
	}
	return t.encode(h.baseValue)
}

func (t *HandleTable) IsHandleValid(v sys.HandleValue) bool {
	_, ok := t.GetHandle(v)
	return ok
}

// GetKoidForHandle returns the koid of the object named by v, or
// sys.KoidInvalid.
func (t *HandleTable) GetKoidForHandle(v sys.HandleValue) sys.Koid {
	h, ok := t.GetHandle(v)
	if !ok {
		return sys.KoidInvalid
	}
	return h.dispatcher.Koid()
}

func (t *HandleTable) HandleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// ForEach calls fn for every live handle under the read lock. fn must not
// call back into the table.
func (t *HandleTable) ForEach(fn func(v sys.HandleValue, h *Handle)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.slots {
		if h := t.slots[i].handle; h != nil {
			fn(t.encode(h.baseValue), h)
		}
	}
}

// Clean removes and releases every handle. It returns how many were closed.
func (t *HandleTable) Clean() int {
	t.mu.Lock()
	var drained []*Handle
	for i := range t.slots {
		if h := t.slots[i].handle; h != nil {
			t.slots[i].handle = nil
			t.free = append(t.free, uint32(i))
			h.processID.Store(uint64(sys.KoidInvalid))
			drained = append(drained, h)
		}
	}
	t.count = 0
	t.mu.Unlock()

	// Releasing may run zero-handles cleanup that reenters this table.
	for _, h := range drained {
		h.Release()
	}
	return len(drained)
}

// GetDispatcherAs resolves v to a dispatcher of type T. It fails with
// ErrBadHandle, ErrWrongType or ErrAccessDenied, in that order of checks.
func GetDispatcherAs[T Dispatcher](t *HandleTable, v sys.HandleValue, rights sys.Rights) (T, sys.Rights, error) {
	var zero T
	h, ok := t.GetHandle(v)
	if !ok {
		return zero, sys.RightNone, sys.ErrBadHandle
	}
	d, err := As[T](h.dispatcher)
	if err != nil {
		return zero, sys.RightNone, err
	}
	if !h.HasRights(rights) {
		return zero, sys.RightNone, sys.ErrAccessDenied
	}
	return d, h.rights, nil
}

// WithLock runs fn with the table write lock held so a multi-step update is
// atomic with respect to other table users. fn must not release handles;
// collect them and release after WithLock returns.
func (t *HandleTable) WithLock(fn func(lt LockedTable) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(LockedTable{t: t})
}

// LockedTable is a HandleTable whose lock is held by the caller.
type LockedTable struct {
	t *HandleTable
}

func (lt LockedTable) Owner() sys.Koid { return lt.t.owner }

func (lt LockedTable) Get(v sys.HandleValue) (*Handle, bool) {
	h, _, ok := lt.t.lookupLocked(v)
	return h, ok
}

func (lt LockedTable) Add(h *Handle) (sys.HandleValue, error) { return lt.t.addLocked(h) }

func (lt LockedTable) Remove(v sys.HandleValue) (*Handle, bool) { return lt.t.removeLocked(v) }

// Restore undoes Remove. Calls must mirror the removals in reverse order.
func (lt LockedTable) Restore(v sys.HandleValue, h *Handle) { lt.t.restoreLocked(v, h) }

// Available is how many more handles the table accepts.
func (lt LockedTable) Available() int { return lt.t.maxHandles - lt.t.count }
