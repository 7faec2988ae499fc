package object

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// SignalObserver is notified when a dispatcher asserts a watched signal.
// Callbacks run without any dispatcher lock held. An observer fires at most
// once; it must re-register to keep watching.
type SignalObserver interface {
	OnMatch(signals sys.Signals)
	OnCancel(signals sys.Signals)
}

// Waiter is a one-shot observer that delivers the observed signals on a
// channel. It is the bridge between kernel signals and an executor that
// parks until an object becomes ready.
type Waiter struct {
	once sync.Once
	ch   chan sys.Signals
}

func NewWaiter() *Waiter {
	return &Waiter{ch: make(chan sys.Signals, 1)}
}

func (w *Waiter) OnMatch(signals sys.Signals) {
	w.once.Do(func() {
		w.ch <- signals
		close(w.ch)
	})
}

func (w *Waiter) OnCancel(sys.Signals) {
	w.once.Do(func() { close(w.ch) })
}

// C is closed after the first notification. A closed channel with no value
// means the wait was canceled.
func (w *Waiter) C() <-chan sys.Signals { return w.ch }

// Wait blocks until the observer fires, is canceled, or ctx is done.
func (w *Waiter) Wait(ctx context.Context) (sys.Signals, error) {
	select {
	case s, ok := <-w.ch:
		if !ok {
			return sys.SignalNone, sys.ErrCanceled
		}
		return s, nil
	case <-ctx.Done():
		return sys.SignalNone, ctx.Err()
	}
}

// RootJobObserver runs a callback once the root job has no children left.
type RootJobObserver struct {
	once     sync.Once
	callback func()
}

// WatchRootJob arms a RootJobObserver on root. Arm it only after the first
// child exists, otherwise it fires immediately.
func WatchRootJob(root *JobDispatcher, callback func()) *RootJobObserver {
	o := &RootJobObserver{callback: callback}
	root.AddObserver(o, sys.SignalJobNoChildren)
	return o
}

func (o *RootJobObserver) OnMatch(sys.Signals) {
	o.once.Do(o.callback)
}

func (o *RootJobObserver) OnCancel(sys.Signals) {}
