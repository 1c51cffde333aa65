// Package dispatcher hands documents to delivery channels. The document lock
// is held only while the attempt is recorded, never across the channel call.
package dispatcher

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

	"billtrack/internal/billing/models"
	"billtrack/internal/delivery/channel"
	deliverymetrics "billtrack/internal/delivery/metrics"
	"billtrack/internal/policy"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/circuit"
	"billtrack/pkg/platform/sentinel"
	"billtrack/pkg/requestcontext"
)

type DocumentStore interface {
	Execute(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context, doc *models.Document) error) (*models.Document, error)
}

type BillLookup interface {
	FindByID(ctx context.Context, billID id.BillID) (*models.Bill, error)
}

type NumberGenerator interface {
	Next(ctx context.Context, prefix string, now time.Time) (string, error)
}

type Senders interface {
	For(ch models.Channel) (channel.Sender, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Payload customises the message. Empty fields fall back to text derived
// from the bill.
type Payload struct {
	Subject string
	Body    string
	Notes   string
}

// RetryPolicy bounds a single dispatch.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy is three calls, 1s then 2s apart, 10s each.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
	AttemptTimeout: 10 * time.Second,
}

type Dispatcher struct {
	documents DocumentStore
	bills     BillLookup
	numbers   NumberGenerator
	senders   Senders
	retry     RetryPolicy
	breakers  map[models.Channel]*circuit.Breaker

	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *deliverymetrics.Metrics
	tracer         trace.Tracer
	sleep          func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(d *Dispatcher) { d.auditPublisher = p }
}

func WithMetrics(m *deliverymetrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(d *Dispatcher) {
		if p.MaxAttempts > 0 {
			d.retry = p
		}
	}
}

// WithBreakerThresholds configures every channel's circuit breaker.
func WithBreakerThresholds(failures, successes int) Option {
	return func(d *Dispatcher) {
		for ch := range d.breakers {
			d.breakers[ch] = circuit.New(string(ch),
				circuit.WithFailureThreshold(failures),
				circuit.WithSuccessThreshold(successes),
			)
		}
	}
}

// withSleep replaces the backoff wait in tests.
func withSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

func New(documents DocumentStore, bills BillLookup, numbers NumberGenerator, senders Senders, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		documents: documents,
		bills:     bills,
		numbers:   numbers,
		senders:   senders,
		retry:     DefaultRetryPolicy,
		breakers:  make(map[models.Channel]*circuit.Breaker),
		logger:    slog.Default(),
		tracer:    otel.Tracer("billtrack/delivery/dispatcher"),
		sleep:     sleepCtx,
	}
	for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelSMS, models.ChannelPost, models.ChannelHandDelivery} {
		d.breakers[ch] = circuit.New(string(ch))
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch records a pending attempt, calls the channel with bounded retry
// and records the outcome. A failed call returns ChannelUnavailable and
// leaves the document status unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, actor id.Actor, docID id.DocumentID, ch models.Channel, payload Payload) (*models.DeliveryAttempt, error) {
	ctx, span := d.tracer.Start(ctx, "delivery.dispatch", trace.WithAttributes(
		attribute.String("document.id", docID.String()),
		attribute.String("delivery.channel", string(ch)),
	))
	defer span.End()

	if err := policy.RequireMutator(actor); err != nil {
		return nil, err
	}
	if !ch.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown delivery channel")
	}
	sender, err := d.senders.For(ch)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeChannelUnavailable, fmt.Sprintf("%s channel is not available", ch))
	}

	attempt, msg, err := d.recordAttempt(ctx, actor, docID, ch, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("delivery.tracking_number", attempt.TrackingNumber))

	start := time.Now()
	ref, sendErr := d.send(ctx, ch, sender, msg)
	if d.metrics != nil {
		outcome := "succeeded"
		if sendErr != nil {
			outcome = "failed"
		}
		d.metrics.ObserveDispatch(string(ch), outcome, time.Since(start))
	}

	// The channel call may have used up ctx; the outcome still has to land.
	recordCtx := context.WithoutCancel(ctx)
	doc, err := d.recordOutcome(recordCtx, docID, attempt.ID, ref, sendErr)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	recorded := doc.Attempt(attempt.ID)

	if sendErr != nil {
		span.SetStatus(codes.Error, sendErr.Error())
		d.logger.WarnContext(ctx, "dispatch failed",
			"document_number", doc.Number,
			"tracking_number", attempt.TrackingNumber,
			"channel", string(ch),
			"error", sendErr,
		)
		d.emit(recordCtx, actor, audit.EventDispatchFailed, attempt.TrackingNumber, sendErr.Error())
		return recorded, dErrors.Wrap(sendErr, dErrors.CodeChannelUnavailable, fmt.Sprintf("%s channel failed to accept the document", ch))
	}

	d.logger.InfoContext(ctx, "document dispatched",
		"document_number", doc.Number,
		"tracking_number", attempt.TrackingNumber,
		"channel", string(ch),
		"status", string(doc.Status),
	)
	d.emit(recordCtx, actor, audit.EventDocumentDispatched, attempt.TrackingNumber, string(ch))
	return recorded, nil
}

// recordAttempt validates the document and appends a pending attempt under
// the document lock.
func (d *Dispatcher) recordAttempt(ctx context.Context, actor id.Actor, docID id.DocumentID, ch models.Channel, payload Payload) (models.DeliveryAttempt, channel.Message, error) {
	var (
		attempt models.DeliveryAttempt
		msg     channel.Message
	)
	now := requestcontext.Now(ctx)

	_, err := d.documents.Execute(ctx, docID, func(ctx context.Context, doc *models.Document) error {
		if err := policy.RequireMutatorOf(actor, doc.CreatedBy); err != nil {
			return err
		}
		if err := doc.CanDispatch(); err != nil {
			return err
		}
		bill, err := d.bills.FindByID(ctx, doc.BillID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvariantViolation, "document has no bill")
		}
		if err != nil {
			return fmt.Errorf("load bill: %w", err)
		}
		contact, err := bill.ContactFor(ch)
		if err != nil {
			return err
		}
		trk, err := d.numbers.Next(ctx, models.PrefixTracking, now)
		if err != nil {
			return fmt.Errorf("allocate tracking number: %w", err)
		}

		attempt = models.DeliveryAttempt{
			ID:               id.NewAttemptID(),
			TrackingNumber:   trk,
			Channel:          ch,
			RecipientName:    bill.RecipientName,
			RecipientContact: contact,
			Notes:            payload.Notes,
		}
		doc.AddAttempt(attempt, now)
		msg = buildMessage(bill, doc, attempt, payload)
		return nil
	})
	if err != nil {
		return models.DeliveryAttempt{}, channel.Message{}, wrapStoreErr(err)
	}
	return attempt, msg, nil
}

// recordOutcome applies the channel result under the document lock. A
// document that moved on while the call was in flight keeps its status; the
// attempt outcome is still recorded.
func (d *Dispatcher) recordOutcome(ctx context.Context, docID id.DocumentID, attemptID id.AttemptID, ref string, sendErr error) (*models.Document, error) {
	now := requestcontext.Now(ctx)
	doc, err := d.documents.Execute(ctx, docID, func(_ context.Context, doc *models.Document) error {
		if sendErr != nil {
			return doc.ApplyDispatchFailure(attemptID, sendErr.Error(), now)
		}
		err := doc.ApplyDispatchSuccess(attemptID, ref, now)
		if dErrors.Is(err, dErrors.CodeInvalidTransition) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return doc, nil
}

// send calls the channel with retry. An open circuit gets exactly one trial call.
func (d *Dispatcher) send(ctx context.Context, ch models.Channel, sender channel.Sender, msg channel.Message) (string, error) {
	breaker := d.breakers[ch]
	attempts := d.retry.MaxAttempts
	if breaker.IsOpen() {
		attempts = 1
	}

	var lastErr error
	backoff := d.retry.InitialBackoff
	for i := 1; i <= attempts; i++ {
		ref, err := d.callOnce(ctx, sender, msg)
		if reflectsChannelHealth(ctx, err) {
			switch breaker.Record(err) {
			case circuit.Opened:
				d.logger.WarnContext(ctx, "channel circuit opened", "channel", string(ch), "error", err)
			case circuit.Closed:
				d.logger.InfoContext(ctx, "channel circuit closed", "channel", string(ch))
			}
			d.setCircuitGauge(ch, breaker)
		}
		if err == nil {
			return ref, nil
		}
		lastErr = err
		if breaker.IsOpen() || !channel.IsRetryable(err) || i == attempts {
			break
		}

		if d.metrics != nil {
			d.metrics.IncrementRetry(string(ch))
		}
		if err := d.sleep(ctx, backoff); err != nil {
			return "", errors.Join(lastErr, err)
		}
		backoff *= 2
	}
	return "", lastErr
}

// reflectsChannelHealth reports whether an outcome should move the breaker.
// Permanent per-recipient rejections and the caller giving up say nothing
// about the channel itself.
func reflectsChannelHealth(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	return channel.IsRetryable(err) && ctx.Err() == nil
}

func (d *Dispatcher) callOnce(ctx context.Context, sender channel.Sender, msg channel.Message) (string, error) {
	callCtx := ctx
	if d.retry.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.retry.AttemptTimeout)
		defer cancel()
	}
	return sender.Send(callCtx, msg)
}

func (d *Dispatcher) setCircuitGauge(ch models.Channel, b *circuit.Breaker) {
	if d.metrics != nil {
		d.metrics.SetCircuitOpen(string(ch), b.IsOpen())
	}
}

func (d *Dispatcher) emit(ctx context.Context, actor id.Actor, event audit.AuditEvent, subject, reason string) {
	if d.auditPublisher == nil {
		return
	}
	if err := d.auditPublisher.Emit(ctx, audit.Event{
		UserID:  actor.UserID,
		Subject: subject,
		Action:  string(event),
		Reason:  reason,
	}); err != nil {
		d.logger.WarnContext(ctx, "failed to emit audit event", "action", string(event), "error", err)
	}
}

func buildMessage(bill *models.Bill, doc *models.Document, attempt models.DeliveryAttempt, p Payload) channel.Message {
	subject := p.Subject
	if subject == "" {
		subject = doc.Title
	}
	body := p.Body
	if body == "" {
		body = fmt.Sprintf("เรียน %s\n\nกรุณาชำระเงินตามใบเรียกเก็บเงินเลขที่ %s\n\nจำนวนเงิน: %s บาท\nกำหนดชำระ: %s\nเลขติดตาม: %s",
			bill.RecipientName, bill.Number, bill.Amount.StringFixed(2), bill.DueDate.Format("2006-01-02"), attempt.TrackingNumber)
	}
	return channel.Message{
		DocumentNumber:   doc.Number,
		TrackingNumber:   attempt.TrackingNumber,
		RecipientName:    attempt.RecipientName,
		RecipientContact: attempt.RecipientContact,
		Subject:          subject,
		Body:             body,
	}
}

func wrapStoreErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent modification, retry the request")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "document is busy, retry the request")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update document")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
