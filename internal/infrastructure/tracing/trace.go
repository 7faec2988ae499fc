package tracing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/fiberkernel/internal/sys"
)

// Tag identifies a kind of kernel trace event.
type Tag string

const (
	TagBoot          Tag = "boot"
	TagJobCreate     Tag = "job_create"
	TagJobKill       Tag = "job_kill"
	TagProcCreate    Tag = "proc_create"
	TagProcStart     Tag = "proc_start"
	TagProcExit      Tag = "proc_exit"
	TagProcKill      Tag = "proc_kill"
	TagChannelCreate Tag = "channel_create"
	TagVMOCreate     Tag = "vmo_create"
	TagPolicy        Tag = "policy"
)

// Event is one recorded kernel event.
type Event struct {
	Seq     uint64    `json:"seq" yaml:"seq"`
	Time    time.Time `json:"time" yaml:"time"`
	Tag     Tag       `json:"tag" yaml:"tag"`
	Koid    sys.Koid  `json:"koid" yaml:"koid"`
	Related sys.Koid  `json:"related,omitempty" yaml:"related,omitempty"`
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	Arg     int64     `json:"arg,omitempty" yaml:"arg,omitempty"`
}

// Tracer keeps the most recent kernel events in a fixed-size ring and
// mirrors each one to the debug log.
type Tracer struct {
	logger *zap.Logger

	mu     sync.Mutex
	ring   []Event
	next   int
	filled bool
	seq    uint64
}

// New creates a tracer holding up to capacity events. A capacity of zero
// disables recording but still logs.
func New(capacity int, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracer{
		logger: logger.Named("ktrace"),
		ring:   make([]Event, capacity),
	}
}

// Record appends an event, overwriting the oldest one when the ring is full.
func (t *Tracer) Record(tag Tag, koid, related sys.Koid, name string, arg int64) {
	if t == nil {
		return
	}

	t.mu.Lock()
	t.seq++
	ev := Event{
		Seq:     t.seq,
		Time:    time.Now(),
		Tag:     tag,
		Koid:    koid,
		Related: related,
		Name:    name,
		Arg:     arg,
	}
	if len(t.ring) > 0 {
		t.ring[t.next] = ev
		t.next++
		if t.next == len(t.ring) {
			t.next = 0
			t.filled = true
		}
	}
	t.mu.Unlock()

	if ce := t.logger.Check(zap.DebugLevel, string(tag)); ce != nil {
		ce.Write(
			zap.Uint64("seq", ev.Seq),
			zap.Uint64("koid", uint64(koid)),
			zap.Uint64("related", uint64(related)),
			zap.String("name", name),
			zap.Int64("arg", arg),
		)
	}
}

// Events returns the recorded events, oldest first.
func (t *Tracer) Events() []Event {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.filled {
		return append([]Event(nil), t.ring[:t.next]...)
	}
	out := make([]Event, 0, len(t.ring))
	out = append(out, t.ring[t.next:]...)
	return append(out, t.ring[:t.next]...)
}

// Filter returns the recorded events with the given tag, oldest first.
func (t *Tracer) Filter(tag Tag) []Event {
	var out []Event
	for _, ev := range t.Events() {
		if ev.Tag == tag {
			out = append(out, ev)
		}
	}
	return out
}
