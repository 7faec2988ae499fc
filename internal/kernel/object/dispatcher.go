package object

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/fiberkernel/internal/kernel/koid"
	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Dispatcher is a kernel object. The set of implementations is closed:
// *JobDispatcher, *ProcessDispatcher, *ChannelDispatcher and *VMODispatcher.
type Dispatcher interface {
	Koid() sys.Koid
	// RelatedKoid is the parent job for jobs, the owning job for
	// processes, the peer endpoint for channels and zero otherwise.
	RelatedKoid() sys.Koid
	Type() sys.ObjType
	DefaultRights() sys.Rights

	Name() string
	SetName(name string)

	Signals() sys.Signals
	UserSignal(clear, set sys.Signals) error
	AddObserver(obs SignalObserver, triggers sys.Signals)
	RemoveObserver(obs SignalObserver) bool

	HandleCount() uint32

	base() *BaseDispatcher
	onZeroHandles()
}

// BaseDispatcher carries the state every dispatcher shares. It is embedded by
// value in each concrete dispatcher.
type BaseDispatcher struct {
	koid        sys.Koid
	handleCount atomic.Uint32
	signals     atomic.Uint32

	mu        sync.Mutex
	name      string
	observers []observerEntry
}

type observerEntry struct {
	observer SignalObserver
	triggers sys.Signals
}

func (b *BaseDispatcher) init(t sys.ObjType, initial sys.Signals) {
	b.koid = koid.Generate()
	b.signals.Store(uint32(initial))
	recordCreate(t)
}

func (b *BaseDispatcher) base() *BaseDispatcher { return b }

func (b *BaseDispatcher) Koid() sys.Koid { return b.koid }

func (b *BaseDispatcher) HandleCount() uint32 { return b.handleCount.Load() }

func (b *BaseDispatcher) Signals() sys.Signals { return sys.Signals(b.signals.Load()) }

func (b *BaseDispatcher) Name() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.name
}

// SetName stores a debug name, truncated to sys.MaxNameLen-1 bytes.
func (b *BaseDispatcher) SetName(name string) {
	if len(name) > sys.MaxNameLen-1 {
		name = name[:sys.MaxNameLen-1]
	}
	b.mu.Lock()
	b.name = name
	b.mu.Unlock()
}

// UserSignal changes bits in the user signal range. Kernel-owned bits are
// rejected with ErrInvalidArgs.
func (b *BaseDispatcher) UserSignal(clear, set sys.Signals) error {
	if (clear|set)&^sys.SignalUserAll != 0 {
		return sys.ErrInvalidArgs
	}
	b.UpdateState(clear, set)
	return nil
}

// UpdateState clears then sets signal bits and notifies matching observers.
func (b *BaseDispatcher) UpdateState(clear, set sys.Signals) {
	b.updateState(clear, set).fire()
}

// AddObserver registers obs until one of triggers is asserted. If a trigger
// is already asserted, obs is notified immediately and not registered.
func (b *BaseDispatcher) AddObserver(obs SignalObserver, triggers sys.Signals) {
	b.mu.Lock()
	current := b.Signals()
	if current&triggers != 0 {
		b.mu.Unlock()
		obs.OnMatch(current)
		return
	}
	b.observers = append(b.observers, observerEntry{observer: obs, triggers: triggers})
	b.mu.Unlock()
}

// RemoveObserver unregisters obs and delivers OnCancel. It reports false if
// obs had already fired or was never registered.
func (b *BaseDispatcher) RemoveObserver(obs SignalObserver) bool {
	b.mu.Lock()
	for i, e := range b.observers {
		if e.observer == obs {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			current := b.Signals()
			b.mu.Unlock()
			obs.OnCancel(current)
			return true
		}
	}
	b.mu.Unlock()
	return false
}

// cancelObservers drops every pending observer once the object can no
// longer change state.
func (b *BaseDispatcher) cancelObservers() {
	b.mu.Lock()
	pending := b.observers
	b.observers = nil
	current := b.Signals()
	b.mu.Unlock()

	for _, e := range pending {
		e.observer.OnCancel(current | sys.SignalHandleClosed)
	}
}

// pendingNotify is a batch of observer callbacks to deliver once the caller
// has dropped its own locks.
type pendingNotify struct {
	signals   sys.Signals
	observers []SignalObserver
}

func (p pendingNotify) fire() {
	for _, obs := range p.observers {
		obs.OnMatch(p.signals)
	}
}

func (b *BaseDispatcher) updateState(clearBits, setBits sys.Signals) pendingNotify {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.Signals()
	next := (prev &^ clearBits) | setBits
	if next == prev {
		return pendingNotify{}
	}
	b.signals.Store(uint32(next))

	n := pendingNotify{signals: next}
	kept := b.observers[:0]
	for _, e := range b.observers {
		if e.triggers&next != 0 {
			n.observers = append(n.observers, e.observer)
			continue
		}
		kept = append(kept, e)
	}
	clear(b.observers[len(kept):])
	b.observers = kept
	return n
}

// As checks the type tag of d and returns it as T, or ErrWrongType. T must be
// one of the concrete dispatcher pointer types.
func As[T Dispatcher](d Dispatcher) (T, error) {
	var zero T
	if d == nil || d.Type() != zero.Type() {
		return zero, sys.ErrWrongType
	}
	t, ok := d.(T)
	if !ok {
		return zero, sys.ErrWrongType
	}
	return t, nil
}
