// Package service merges asynchronous delivery and payment signals into the
// document lifecycle. Every event is applied under the document lock; events
// older than the last applied one are discarded.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	billing "billtrack/internal/billing/models"
	ledger "billtrack/internal/ledger/models"
	reconcilemetrics "billtrack/internal/reconcile/metrics"
	"billtrack/internal/reconcile/models"
	"billtrack/internal/reconcile/orphan"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/sentinel"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=reconciler.go -destination=mocks/mocks.go -package=mocks DocumentStore,Ledger

type DocumentStore interface {
	FindByExternalReference(ctx context.Context, ref string) (*billing.Document, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*billing.Document, error)
	Execute(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context, doc *billing.Document) error) (*billing.Document, error)
}

// Ledger records income inside the same unit of work as the Paid transition.
type Ledger interface {
	HasIncome(ctx context.Context, docID id.DocumentID) (bool, error)
	RecordIncome(ctx context.Context, doc *billing.Document, paymentReference string) (*ledger.IncomeRecord, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DefaultOrphanRetryDelay is how long an unmatched event waits for its retry.
const DefaultOrphanRetryDelay = 2 * time.Second

// errUnmatched signals from inside Execute that the reference matched no
// dispatched attempt; nothing is persisted.
var errUnmatched = errors.New("reference matches no delivery attempt")

type Reconciler struct {
	documents  DocumentStore
	ledger     Ledger
	queue      orphan.Queue
	retryDelay time.Duration

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *reconcilemetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Reconciler)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(r *Reconciler) { r.auditPublisher = p }
}

func WithMetrics(m *reconcilemetrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func WithOrphanRetryDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.retryDelay = d
		}
	}
}

func New(documents DocumentStore, ledger Ledger, queue orphan.Queue, opts ...Option) *Reconciler {
	r := &Reconciler{
		documents:  documents,
		ledger:     ledger,
		queue:      queue,
		retryDelay: DefaultOrphanRetryDelay,
		logger:     slog.Default(),
		tracer:     otel.Tracer("billtrack/reconcile"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ApplyEvent merges one external event into its document.
//
// Outcomes by error code: StaleEvent (discarded, state untouched),
// UnknownDocument, OrphanEvent (queued for one retry), InvalidTransition.
func (r *Reconciler) ApplyEvent(ctx context.Context, ev models.Event) (*billing.Document, error) {
	return r.apply(ctx, models.PendingEvent{Event: ev})
}

// ApplyCallback applies a gateway callback that identifies the document only
// by reference. The reference is matched against attempt references first and
// tracking numbers second; an unresolved reference is treated as an orphan.
func (r *Reconciler) ApplyCallback(ctx context.Context, ev models.Event) (*billing.Document, error) {
	ev.DocumentID = id.DocumentID{}
	return r.apply(ctx, models.PendingEvent{Event: ev})
}

// Retry re-applies a queued orphan. A second miss discards it.
func (r *Reconciler) Retry(ctx context.Context, pending models.PendingEvent) (*billing.Document, error) {
	pending.Retries++
	doc, err := r.apply(ctx, pending)
	if err == nil && r.metrics != nil {
		r.metrics.IncrementOrphanResolved()
	}
	return doc, err
}

func (r *Reconciler) apply(ctx context.Context, pending models.PendingEvent) (*billing.Document, error) {
	ev := pending.Event
	ctx, span := r.tracer.Start(ctx, "reconcile.apply", trace.WithAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.reference", ev.ExternalReference),
		attribute.Int("event.retries", pending.Retries),
	))
	defer span.End()

	doc, err := r.applyLocked(ctx, pending)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if r.metrics != nil && !dErrors.Is(err, dErrors.CodeOrphanEvent) && !dErrors.Is(err, dErrors.CodeStaleEvent) {
			r.metrics.IncrementRejected(string(dErrors.CodeOf(err)))
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.IncrementApplied(string(ev.Kind))
	}
	r.logger.InfoContext(ctx, "external event applied",
		"document_number", doc.Number,
		"kind", string(ev.Kind),
		"status", string(doc.Status),
		"reference", ev.ExternalReference,
	)
	return doc, nil
}

func (r *Reconciler) applyLocked(ctx context.Context, pending models.PendingEvent) (*billing.Document, error) {
	ev := pending.Event
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	docID := ev.DocumentID
	if docID.IsNil() {
		resolved, err := r.resolve(ctx, ev.ExternalReference)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, r.orphaned(ctx, pending)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve event reference")
		}
		docID = resolved
	}

	doc, err := r.documents.Execute(ctx, docID, func(ctx context.Context, doc *billing.Document) error {
		if doc.IsStale(ev.Timestamp) {
			return dErrors.New(dErrors.CodeStaleEvent,
				fmt.Sprintf("event at %s predates last applied event at %s", ev.Timestamp.Format(time.RFC3339), doc.LastEventAt.Format(time.RFC3339)))
		}
		if err := r.transition(ctx, doc, ev); err != nil {
			return err
		}
		doc.ObserveEvent(ev.Timestamp)
		return nil
	})
	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, errUnmatched):
		return nil, r.orphaned(ctx, pending)
	case dErrors.Is(err, dErrors.CodeStaleEvent):
		if r.metrics != nil {
			r.metrics.IncrementStale(string(ev.Kind))
		}
		r.logger.InfoContext(ctx, "stale event discarded", "document_id", docID.String(), "kind", string(ev.Kind))
		return nil, err
	default:
		return nil, wrapStoreErr(err)
	}
}

// transition applies ev to doc. It runs under the document lock.
func (r *Reconciler) transition(ctx context.Context, doc *billing.Document, ev models.Event) error {
	now := requestcontext.Now(ctx)

	var attempt *billing.DeliveryAttempt
	if ev.Kind.IsDelivery() && ev.ExternalReference != "" {
		attempt = doc.AttemptByReference(ev.ExternalReference)
		if attempt == nil {
			attempt = doc.AttemptByTrackingNumber(ev.ExternalReference)
		}
		// A pending attempt is still being dispatched. Its report waits for
		// the dispatch result like a reference that has not landed yet.
		if attempt == nil || attempt.Status == billing.AttemptPending {
			return errUnmatched
		}
	}

	var auditEvent audit.AuditEvent
	switch ev.Kind {
	case models.KindDelivered:
		if err := doc.ApplyDelivered(attempt, ev.Timestamp, now); err != nil {
			return err
		}
		auditEvent = audit.EventDeliveryConfirmed
	case models.KindDeliveryFailed:
		if err := doc.ApplyDeliveryFailed(attempt, ev.Reason, now); err != nil {
			return err
		}
		auditEvent = audit.EventDeliveryFailed
	case models.KindPaymentConfirmed:
		if doc.Status == billing.StatusPaid {
			return nil
		}
		if err := doc.ApplyPaid(now); err != nil {
			return err
		}
		if err := r.recordIncome(ctx, doc, ev.ExternalReference); err != nil {
			return err
		}
		auditEvent = audit.EventPaymentConfirmed
	}

	r.emit(ctx, audit.Event{
		Subject: doc.Number,
		Action:  string(auditEvent),
		Reason:  ev.Source,
	})
	return nil
}

// recordIncome writes the income record for a document entering Paid. A
// record that already exists for the document completes the transition
// instead of blocking it forever behind DuplicateIncome.
func (r *Reconciler) recordIncome(ctx context.Context, doc *billing.Document, paymentReference string) error {
	exists, err := r.ledger.HasIncome(ctx, doc.ID)
	if err != nil {
		return err
	}
	if exists {
		r.logger.WarnContext(ctx, "income already recorded, completing paid transition",
			"document_number", doc.Number,
			"reference", paymentReference,
		)
		return nil
	}
	_, err = r.ledger.RecordIncome(ctx, doc, paymentReference)
	return err
}

// emit logs audit failures; they never abort the document unit of work.
func (r *Reconciler) emit(ctx context.Context, event audit.Event) {
	if r.auditPublisher == nil {
		return
	}
	if err := r.auditPublisher.Emit(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// resolve finds the document an attempt reference or tracking number belongs to.
func (r *Reconciler) resolve(ctx context.Context, ref string) (id.DocumentID, error) {
	doc, err := r.documents.FindByExternalReference(ctx, ref)
	if errors.Is(err, sentinel.ErrNotFound) {
		doc, err = r.documents.FindByTrackingNumber(ctx, ref)
	}
	if err != nil {
		return id.DocumentID{}, err
	}
	return doc.ID, nil
}

// orphaned queues a first miss for one retry and discards a second.
func (r *Reconciler) orphaned(ctx context.Context, pending models.PendingEvent) error {
	ev := pending.Event
	if pending.Retries > 0 {
		if r.metrics != nil {
			r.metrics.IncrementOrphanDiscarded()
		}
		r.logger.WarnContext(ctx, "orphan event discarded after retry",
			"kind", string(ev.Kind),
			"reference", ev.ExternalReference,
			"document_id", ev.DocumentID.String(),
			"queued_at", pending.QueuedAt,
		)
		r.emit(ctx, audit.Event{
			Subject: ev.ExternalReference,
			Action:  string(audit.EventOrphanDiscarded),
			Reason:  string(ev.Kind),
		})
		return dErrors.New(dErrors.CodeOrphanEvent, "event reference matched no delivery attempt; discarded")
	}

	now := requestcontext.Now(ctx)
	pending.QueuedAt = now
	if err := r.queue.Schedule(ctx, pending, now.Add(r.retryDelay)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue orphan event")
	}
	if r.metrics != nil {
		r.metrics.IncrementOrphanQueued()
	}
	r.logger.InfoContext(ctx, "orphan event queued for retry",
		"kind", string(ev.Kind),
		"reference", ev.ExternalReference,
		"retry_in", r.retryDelay.String(),
	)
	return dErrors.New(dErrors.CodeOrphanEvent, "event reference matched no delivery attempt; queued for retry")
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeUnknownDocument, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent modification, retry the event")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "document is busy, retry the event")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to apply event")
	}
}
