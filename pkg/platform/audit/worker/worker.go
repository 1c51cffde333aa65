// Package worker persists buffered audit events off the request path.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	audit "billtrack/pkg/platform/audit"
)

// Worker appends events from inbox to a store. A failed append is retried
// once, then logged and dropped; the worker keeps draining.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	logger  *slog.Logger
	backoff time.Duration
	dropped atomic.Int64
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRetryBackoff sets the pause before the single retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(w *Worker) { w.backoff = d }
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{
		store:   store,
		inbox:   inbox,
		logger:  slog.New(slog.DiscardHandler),
		backoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run returns nil once inbox is closed and drained, or ctx.Err() if ctx ends
// first. Appends detach from ctx cancellation so shutdown does not abort a
// write already in flight.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			w.append(context.WithoutCancel(ctx), event)
		}
	}
}

// Dropped reports how many events were given up on.
func (w *Worker) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Worker) append(ctx context.Context, event audit.Event) {
	err := w.store.Append(ctx, event)
	if err == nil {
		return
	}
	time.Sleep(w.backoff)
	if err = w.store.Append(ctx, event); err == nil {
		return
	}
	w.dropped.Add(1)
	w.logger.Error("audit event dropped",
		"action", event.Action,
		"subject", event.Subject,
		"request_id", event.RequestID,
		"error", err,
	)
}
