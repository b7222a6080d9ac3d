package events

import (
	"sync"

	"tripartite/core/types"
)

// Event represents a structured state change emitted by the registry.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the event log,
// HTTP observers).
type Emitter interface {
	Emit(Event)
}

// Payloader is implemented by events that carry a canonical record.
type Payloader interface {
	Event() *types.Event
}

// Payload returns the canonical record carried by evt, or a bare record with
// only the type set when evt does not carry one.
func Payload(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payloader); ok {
		if rec := p.Event(); rec != nil {
			return rec
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, em := range m {
		if em != nil {
			em.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory. Tests use it to assert on the
// exact sequence of events produced by an operation.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	rec := Payload(evt)
	if rec == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, rec.Clone())
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
