package service

import (
	"context"
	"log/slog"
	"time"

	"billtrack/internal/reconcile/orphan"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/requestcontext"
)

const (
	defaultRetryInterval = time.Second
	defaultRetryBatch    = 100
)

// RetryWorker re-applies queued orphan events once they come due.
type RetryWorker struct {
	reconciler *Reconciler
	queue      orphan.Queue
	interval   time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

type WorkerOption func(*RetryWorker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *RetryWorker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *RetryWorker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *RetryWorker) { w.logger = logger }
}

func withClock(now func() time.Time) WorkerOption {
	return func(w *RetryWorker) { w.now = now }
}

func NewRetryWorker(reconciler *Reconciler, queue orphan.Queue, opts ...WorkerOption) *RetryWorker {
	w := &RetryWorker{
		reconciler: reconciler,
		queue:      queue,
		interval:   defaultRetryInterval,
		batch:      defaultRetryBatch,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains due events every interval until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "orphan retry worker started", "interval", w.interval.String())
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "orphan retry worker stopped")
			return
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "orphan retry pass failed", "error", err)
			}
		}
	}
}

// DrainOnce retries every event due now and returns how many were resolved.
// Events claimed before a queue error are still retried.
func (w *RetryWorker) DrainOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, dueErr := w.queue.Due(ctx, now, w.batch)

	resolved := 0
	for _, pending := range due {
		retryCtx := requestcontext.WithTime(ctx, now)
		if _, err := w.reconciler.Retry(retryCtx, pending); err != nil {
			if !dErrors.Is(err, dErrors.CodeOrphanEvent) && !dErrors.Is(err, dErrors.CodeStaleEvent) {
				w.logger.WarnContext(ctx, "orphan retry rejected",
					"kind", string(pending.Event.Kind),
					"reference", pending.Event.ExternalReference,
					"error", err,
				)
			}
			continue
		}
		resolved++
	}
	return resolved, dueErr
}
