package events

import (
	"context"
	"sync"
	"time"
)

// LocalBus is an in-process Publisher/Subscriber used when redis is not
// configured (single instance) and in tests.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]func(Event))}
}

func (b *LocalBus) Publish(_ context.Context, stream string, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	b.mu.RLock()
	hs := append([]func(Event){}, b.handlers[stream]...)
	b.mu.RUnlock()
	for _, h := range hs {
		h(event)
	}
	return nil
}

func (b *LocalBus) Subscribe(_ context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	b.handlers[stream] = append(b.handlers[stream], handler)
	b.mu.Unlock()
	return nil
}
