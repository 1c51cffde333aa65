// Package publisher enriches audit events from the request context and hands
// them to a store, synchronously or through a bounded buffer.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	id "billtrack/pkg/domain"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/audit/worker"
	"billtrack/pkg/platform/middleware/metadata"
	txcontext "billtrack/pkg/platform/tx"
	"billtrack/pkg/requestcontext"
)

// ErrBufferFull is returned by Emit in async mode when the buffer has no room.
var ErrBufferFull = errors.New("audit buffer full")

// Publisher is safe for concurrent use.
type Publisher struct {
	store      audit.Store
	reader     audit.Reader
	bufferSize int
	logger     *slog.Logger

	inbox  chan audit.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking with a buffer of n events.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.bufferSize = n
	}
}

// WithLogger receives events the async worker had to drop.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher builds a publisher. The list methods work when store also
// implements audit.Reader.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	if r, ok := store.(audit.Reader); ok {
		p.reader = r
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufferSize > 0 {
		p.inbox = make(chan audit.Event, p.bufferSize)
		p.done = make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		w := worker.NewWorker(store, p.inbox, worker.WithLogger(p.logger))
		go func() {
			defer close(p.done)
			_ = w.Run(ctx)
		}()
	}
	return p
}

// Emit enriches event with timestamp, request id and client metadata and
// records it. When ctx carries a SQL transaction the event is written
// synchronously so it commits or rolls back with the business change.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}
	if event.Device == "" {
		event.Device = metadata.DeviceLabel(requestcontext.UserAgent(ctx))
	}

	if _, inTx := txcontext.From(ctx); inTx || p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBufferFull
	}
}

// ErrNoReader is returned by the list methods when the store cannot read
// events back.
var ErrNoReader = errors.New("audit store does not support listing")

// ListByUser returns the events recorded for userID.
func (p *Publisher) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	if p.reader == nil {
		return nil, ErrNoReader
	}
	return p.reader.ListByUser(ctx, userID)
}

// ListBySubject returns the trail of one bill or document number.
func (p *Publisher) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	if p.reader == nil {
		return nil, ErrNoReader
	}
	return p.reader.ListBySubject(ctx, subject)
}

// Close stops the async worker after draining buffered events.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox == nil {
			return
		}
		close(p.inbox)
		<-p.done
		p.cancel()
	})
}
