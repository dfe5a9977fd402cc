package events

import (
	"sync"
)

// Handler consumes an event. Emission is synchronous, so handlers must not
// block indefinitely.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
// Go functions are not comparable, so Subscribe hands back a token instead
// of matching on the handler itself.
type Subscription struct {
	eventType Type
	id        int
}

type subscriber struct {
	id      int
	handler Handler
}

// Bus is a synchronous in-process pub/sub bus with an append-only history.
// Handlers are invoked in subscription order; the event is appended to
// history after delivery.
type Bus struct {
	mu      sync.Mutex
	subs    map[Type][]subscriber
	history []Event
	nextID  int
	closed  bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Type][]subscriber),
	}
}

// Subscribe registers a handler for an event type and returns a token for
// later removal.
func (b *Bus) Subscribe(eventType Type, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscriber{id: b.nextID, handler: handler})
	return Subscription{eventType: eventType, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Removing a handler
// stops further delivery to it without affecting history. Safe to call with
// an already-removed subscription.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit delivers an event synchronously to every matching subscriber in
// subscription order, then appends it to history.
func (b *Bus) Emit(event Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subs := b.subs[event.Type]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	b.mu.Unlock()

	// Invoke handlers outside the lock so a handler may emit or subscribe
	for _, handler := range handlers {
		handler(event)
	}

	b.mu.Lock()
	if !b.closed {
		b.history = append(b.history, event)
	}
	b.mu.Unlock()
}

// History returns the full event log in emission order, or a type-filtered
// view when eventType is non-empty.
func (b *Bus) History(eventType Type) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if eventType == "" {
		return append([]Event(nil), b.history...)
	}

	var filtered []Event
	for _, e := range b.history {
		if e.Type == eventType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// ClearHistory drops the event log but keeps subscriptions.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// Close stops the bus. Subsequent Emit calls are dropped.
// Safe to call multiple times (idempotent).
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
