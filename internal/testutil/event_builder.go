package testutil

import (
	"sync"

	"github.com/hupe1980/raaf/core"
)

// EventRecorder collects run events for assertions. Its Observe method is a
// core.Observer and is safe for concurrent use.
//
//	rec := &EventRecorder{}
//	r := runner.New(p, func(o *runner.Options) { o.Observer = rec.Observe })
type EventRecorder struct {
	mu     sync.Mutex
	events []core.Event
}

// Observe records ev.
func (r *EventRecorder) Observe(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *EventRecorder) Types() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// OfType returns the recorded events of type t.
func (r *EventRecorder) OfType(t core.EventType) []core.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
