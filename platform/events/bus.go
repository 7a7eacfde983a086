// Package events provides event bus infrastructure for decoupled,
// event-driven communication between modules.
package events

import (
	"context"
	"fmt"
	"sync"

	"conversa_backend/platform/logger"
)

// InMemoryBus is an in-process implementation of Bus. Handlers registered
// for an event name run in their own goroutine on Publish; panics in a
// handler are recovered and logged rather than crashing the process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		log:      log,
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish sends an event to all registered handlers asynchronously.
// Handler errors are logged, not returned; the publisher must not depend
// on subscriber outcomes.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.EventName()]
	b.mu.RUnlock()

	for _, handler := range handlers {
		go func(h Handler) {
			defer b.recoverPanic(event.EventName())
			// Detach from the request context so handlers survive the
			// originating HTTP request.
			if err := h.Handle(context.WithoutCancel(ctx), event); err != nil {
				b.log.Error("event handler failed",
					"event", event.EventName(),
					"error", err.Error(),
				)
			}
		}(handler)
	}
}

// PublishSync sends an event and waits for all handlers to complete.
// Returns the first error encountered.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := b.handlers[event.EventName()]
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("handler for %s: %w", event.EventName(), err)
		}
	}
	return nil
}

func (b *InMemoryBus) recoverPanic(eventName string) {
	if r := recover(); r != nil {
		b.log.Error("event handler panicked",
			"event", eventName,
			"panic", fmt.Sprint(r),
		)
	}
}
