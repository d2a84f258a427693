package bus

import (
	"context"
	"sync"
)

// MemoryBus is the single-process Bus used by tests and local development.
// Events loop back to every subscriber immediately; Source filtering still
// applies at the consumer, mirroring the distributed implementations.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish delivers event synchronously to every subscriber.
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

// Subscribe registers handler for all published events.
func (b *MemoryBus) Subscribe(_ context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.handlers = append(b.handlers, handler)
	return nil
}

// Close drops all subscribers.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = nil
	b.closed = true
	return nil
}
