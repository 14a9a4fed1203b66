// Package push is the realtime channel collaborator: asynchronous
// server-to-client events delivered outside the request/response cycle.
// The core consumes a small fixed vocabulary of events and emits room
// join/leave signals; connection handshake and auth live elsewhere.
package push

import (
	"context"
	"encoding/json"
	"sync"
)

// Event names the channel carries.
type Event string

const (
	// Consumed events.
	EventNewGroupMessage Event = "newGroupMessage"
	EventGroupCreated    Event = "groupCreated"
	EventUserAdded       Event = "userAddedToGroup"
	EventUserRemoved     Event = "userRemovedFromGroup"
	EventGroupRenamed    Event = "groupRenamed"

	// Emitted events.
	EventJoinGroup  Event = "joinGroup"
	EventLeaveGroup Event = "leaveGroup"
)

// Handler receives the raw payload of one event. Handlers run on the
// channel's delivery goroutine and must not block.
type Handler func(data json.RawMessage)

// Channel is the push transport surface the stores subscribe through.
type Channel interface {
	// On registers the handler for an event, replacing any previous one.
	On(event Event, h Handler)
	// Off removes the handler for an event.
	Off(event Event)
	// Emit sends an event to the server (joinGroup / leaveGroup).
	Emit(ctx context.Context, event Event, payload any) error
}

// Fake is an in-memory Channel for tests and the scenario harness.
// Deliver invokes the registered handler synchronously, which mirrors the
// production socket's single delivery goroutine.
type Fake struct {
	mu       sync.Mutex
	handlers map[Event]Handler
	emitted  []Emitted
}

// Emitted records one Emit call for assertions.
type Emitted struct {
	Event   Event
	Payload any
}

// NewFake creates an empty fake channel.
func NewFake() *Fake {
	return &Fake{handlers: make(map[Event]Handler)}
}

// On implements Channel.
func (f *Fake) On(event Event, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

// Off implements Channel.
func (f *Fake) Off(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, event)
}

// Emit implements Channel.
func (f *Fake) Emit(_ context.Context, event Event, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: payload})
	return nil
}

// Deliver dispatches a raw payload to the registered handler, if any.
// Returns true when a handler consumed it.
func (f *Fake) Deliver(event Event, data json.RawMessage) bool {
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// EmittedEvents returns a copy of everything emitted so far.
func (f *Fake) EmittedEvents() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Emitted(nil), f.emitted...)
}

// Subscribed reports whether a handler is registered for event.
func (f *Fake) Subscribed(event Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[event]
	return ok
}
