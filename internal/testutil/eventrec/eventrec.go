// Package eventrec records published lifecycle events in tests.
package eventrec

import (
	"context"
	"sync"

	"truck-dispatch/internal/domain"
)

// Published is one Publish call.
type Published struct {
	Event domain.Event
	Rooms []string
}

// Recorder satisfies the services' publisher dependency.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	hook   func(context.Context, domain.Event)
}

// New returns an empty recorder.
func New() *Recorder { return &Recorder{} }

// OnPublish runs fn synchronously for every later Publish, after the event is recorded,
// the way a subscriber on the same instance would observe it.
func (r *Recorder) OnPublish(fn func(context.Context, domain.Event)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = fn
}

// Publish records e.
func (r *Recorder) Publish(ctx context.Context, e domain.Event, rooms ...string) {
	r.mu.Lock()
	r.events = append(r.events, Published{Event: e, Rooms: append([]string(nil), rooms...)})
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(ctx, e)
	}
}

// Events returns a copy of everything published.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// OfType returns the calls with the given event type.
func (r *Recorder) OfType(t domain.EventType) []Published {
	var out []Published
	for _, p := range r.Events() {
		if p.Event.Type == t {
			out = append(out, p)
		}
	}
	return out
}
