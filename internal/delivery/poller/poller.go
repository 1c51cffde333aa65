// Package poller asks the postal API about shipments that are still in
// flight and turns reported deliveries and returns into reconciler events.
package poller

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	billing "billtrack/internal/billing/models"
	"billtrack/internal/delivery/channel"
	deliverymetrics "billtrack/internal/delivery/metrics"
	reconcile "billtrack/internal/reconcile/models"
	dErrors "billtrack/pkg/domain-errors"
)

type DocumentStore interface {
	ListAwaitingDelivery(ctx context.Context, ch billing.Channel, limit int) ([]*billing.Document, error)
}

type Tracker interface {
	Track(ctx context.Context, ref string) (channel.TrackingStatus, error)
}

type Reconciler interface {
	ApplyEvent(ctx context.Context, ev reconcile.Event) (*billing.Document, error)
}

const (
	defaultInterval    = 15 * time.Minute
	defaultConcurrency = 4
	defaultBatchSize   = 200
)

// Result summarises one polling pass.
type Result struct {
	Checked   int `json:"checked"`
	Delivered int `json:"delivered"`
	Returned  int `json:"returned"`
	Errors    int `json:"errors"`
}

type Poller struct {
	documents  DocumentStore
	tracker    Tracker
	reconciler Reconciler

	interval    time.Duration
	concurrency int
	batchSize   int
	logger      *slog.Logger
	metrics     *deliverymetrics.Metrics
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithConcurrency bounds how many tracking calls run at once.
func WithConcurrency(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) { p.logger = logger }
}

func WithMetrics(m *deliverymetrics.Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func New(documents DocumentStore, tracker Tracker, reconciler Reconciler, opts ...Option) *Poller {
	p := &Poller{
		documents:   documents,
		tracker:     tracker,
		reconciler:  reconciler,
		interval:    defaultInterval,
		concurrency: defaultConcurrency,
		batchSize:   defaultBatchSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.InfoContext(ctx, "delivery poller started", "interval", p.interval.String(), "concurrency", p.concurrency)
	for {
		select {
		case <-ctx.Done():
			p.logger.InfoContext(ctx, "delivery poller stopped")
			return
		case <-ticker.C:
			res, err := p.PollOnce(ctx)
			if err != nil {
				p.logger.ErrorContext(ctx, "delivery poll failed", "error", err)
				continue
			}
			p.logger.InfoContext(ctx, "delivery poll finished",
				"checked", res.Checked,
				"delivered", res.Delivered,
				"returned", res.Returned,
				"errors", res.Errors,
			)
		}
	}
}

// PollOnce checks every Sent document with an outstanding postal shipment.
// A failing shipment lookup is counted and skipped; it never aborts the pass.
func (p *Poller) PollOnce(ctx context.Context) (Result, error) {
	if p.metrics != nil {
		p.metrics.IncrementPollerRun()
	}
	docs, err := p.documents.ListAwaitingDelivery(ctx, billing.ChannelPost, p.batchSize)
	if err != nil {
		return Result{}, err
	}

	var checked, delivered, returned, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for _, doc := range docs {
		for _, attempt := range outstanding(doc) {
			g.Go(func() error {
				checked.Add(1)
				outcome, err := p.check(ctx, doc, attempt)
				switch {
				case err != nil:
					failed.Add(1)
					p.logger.WarnContext(ctx, "shipment check failed",
						"document_number", doc.Number,
						"tracking_number", attempt.TrackingNumber,
						"error", err,
					)
					p.observe("error")
				case outcome == reconcile.KindDelivered:
					delivered.Add(1)
					p.observe("delivered")
				case outcome == reconcile.KindDeliveryFailed:
					returned.Add(1)
					p.observe("returned")
				default:
					p.observe("in_transit")
				}
				return nil
			})
		}
	}
	_ = g.Wait()

	return Result{
		Checked:   int(checked.Load()),
		Delivered: int(delivered.Load()),
		Returned:  int(returned.Load()),
		Errors:    int(failed.Load()),
	}, ctx.Err()
}

// check asks the postal API about one shipment and applies what it reports.
// The returned kind is empty while the shipment is still moving.
func (p *Poller) check(ctx context.Context, doc *billing.Document, attempt billing.DeliveryAttempt) (reconcile.Kind, error) {
	status, err := p.tracker.Track(ctx, attempt.ExternalReference)
	if err != nil {
		return "", err
	}

	ev := reconcile.Event{
		DocumentID:        doc.ID,
		ExternalReference: attempt.ExternalReference,
		Timestamp:         status.UpdatedAt,
		Source:            "postal-poller",
	}
	switch status.Status {
	case channel.TrackingDelivered:
		ev.Kind = reconcile.KindDelivered
		if status.DeliveredAt != nil {
			ev.Timestamp = *status.DeliveredAt
		}
	case channel.TrackingReturned:
		ev.Kind = reconcile.KindDeliveryFailed
		ev.Reason = status.Detail
		if ev.Reason == "" {
			ev.Reason = "returned to sender"
		}
	default:
		return "", nil
	}

	_, err = p.reconciler.ApplyEvent(ctx, ev)
	if dErrors.Is(err, dErrors.CodeStaleEvent) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ev.Kind, nil
}

func (p *Poller) observe(result string) {
	if p.metrics != nil {
		p.metrics.IncrementPollerEvent(result)
	}
}

// outstanding lists the document's postal attempts that have a reference and
// are not yet known to be delivered or failed.
func outstanding(doc *billing.Document) []billing.DeliveryAttempt {
	var out []billing.DeliveryAttempt
	for _, a := range doc.Attempts {
		if a.Channel == billing.ChannelPost && a.ExternalReference != "" && a.DeliveredAt == nil && a.Status != billing.AttemptFailed {
			out = append(out, a)
		}
	}
	return out
}
