package events

import (
	"log/slog"
	"sync"
)

// Type identifies an event on the bus.
type Type string

// Events published by the transcription pipeline.
const (
	// TypeSegment fires for every transcript segment added.
	TypeSegment Type = "segment"

	// TypeUtterance fires when a complete utterance has been transcribed.
	TypeUtterance Type = "utterance"
)

// Handler is called when a subscribed event is published.
type Handler func()

// UnsubscribeFunc removes a previously registered handler.
type UnsubscribeFunc func()

// Bus is a lightweight publish/subscribe bus for typed events.
// The zero value is not usable; create one with NewBus.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Type]map[int]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Type]map[int]Handler)}
}

// Subscribe registers a handler for the given event type and returns a
// function that removes it again. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(t Type, handler Handler) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners[t] == nil {
		b.listeners[t] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.listeners[t][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners[t], id)
		if len(b.listeners[t]) == 0 {
			delete(b.listeners, t)
		}
	}
}

// Publish invokes all handlers registered for the event type. Handlers run
// in their own goroutines; panics are recovered and logged so a broken
// subscriber cannot take down the pipeline.
func (b *Bus) Publish(t Type) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.listeners[t]))
	for _, h := range b.listeners[t] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("event handler panicked", "event", string(t), "panic", r)
				}
			}()
			h()
		}(h)
	}
}
