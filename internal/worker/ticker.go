package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handle controls a periodic task started by Every.
type Handle struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every runs fn every interval until ctx is cancelled or Stop is called.
// With immediate set, fn also runs once right away. Runs never overlap.
func Every(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context), log *zap.Logger) *Handle {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{name: name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if immediate {
			run(ctx, name, fn, log)
		}

		for {
			select {
			case <-ticker.C:
				run(ctx, name, fn, log)
			case <-ctx.Done():
				log.Debug("periodic task stopped", zap.String("task", name))
				return
			}
		}
	}()

	return h
}

func run(ctx context.Context, name string, fn func(context.Context), log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("periodic task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Stop cancels the task and waits for the running iteration to return.
// Safe to call more than once.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
	<-h.done
}

// Done is closed once the task goroutine has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Name() string {
	return h.name
}
