// Package stream feeds gateway status events consumed from Kafka into the
// reconciler.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	billing "billtrack/internal/billing/models"
	"billtrack/internal/platform/kafka/consumer"
	"billtrack/internal/reconcile/models"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

type Reconciler interface {
	ApplyEvent(ctx context.Context, ev models.Event) (*billing.Document, error)
	ApplyCallback(ctx context.Context, ev models.Event) (*billing.Document, error)
}

// payload is the wire shape shared by both event topics.
type payload struct {
	DocumentID        string    `json:"document_id"`
	Kind              string    `json:"kind"`
	Timestamp         time.Time `json:"timestamp"`
	ExternalReference string    `json:"external_reference"`
	Reason            string    `json:"reason"`
}

// EventHandler decodes one topic's records. defaultKind fills in records that
// omit a kind; the payment topic only carries payment confirmations.
type EventHandler struct {
	reconciler  Reconciler
	defaultKind models.Kind
	allowed     func(models.Kind) bool
	logger      *slog.Logger
}

// NewDeliveryHandler accepts delivered and delivery_failed records.
func NewDeliveryHandler(r Reconciler, logger *slog.Logger) *EventHandler {
	return &EventHandler{reconciler: r, allowed: models.Kind.IsDelivery, logger: logger}
}

// NewPaymentHandler accepts payment_confirmed records.
func NewPaymentHandler(r Reconciler, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		reconciler:  r,
		defaultKind: models.KindPaymentConfirmed,
		allowed:     func(k models.Kind) bool { return k == models.KindPaymentConfirmed },
		logger:      logger,
	}
}

// Handle applies one record. Malformed records and expected reconciliation
// outcomes are logged and acknowledged; only infrastructure failures are
// returned so the consumer logs them.
func (h *EventHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	ev, err := h.decode(msg)
	if err != nil {
		h.logger.WarnContext(ctx, "dropping malformed event record",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if ev.DocumentID.IsNil() {
		_, err = h.reconciler.ApplyCallback(ctx, ev)
	} else {
		_, err = h.reconciler.ApplyEvent(ctx, ev)
	}
	switch {
	case err == nil:
		return nil
	case dErrors.Is(err, dErrors.CodeStaleEvent), dErrors.Is(err, dErrors.CodeOrphanEvent):
		return nil
	case dErrors.Is(err, dErrors.CodeInvalidTransition),
		dErrors.Is(err, dErrors.CodeUnknownDocument),
		dErrors.Is(err, dErrors.CodeDuplicateIncome):
		h.logger.ErrorContext(ctx, "event record rejected",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"kind", string(ev.Kind),
			"reference", ev.ExternalReference,
			"error", err,
		)
		return nil
	default:
		return err
	}
}

func (h *EventHandler) decode(msg *consumer.Message) (models.Event, error) {
	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return models.Event{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid event json")
	}

	kind := h.defaultKind
	if p.Kind != "" {
		parsed, err := models.ParseKind(p.Kind)
		if err != nil {
			return models.Event{}, err
		}
		kind = parsed
	}
	if !h.allowed(kind) {
		return models.Event{}, dErrors.New(dErrors.CodeValidation, "event kind "+string(kind)+" not accepted on "+msg.Topic)
	}

	ev := models.Event{
		Kind:              kind,
		Timestamp:         p.Timestamp,
		ExternalReference: p.ExternalReference,
		Reason:            p.Reason,
		Source:            "kafka:" + msg.Topic,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = msg.Timestamp
	}
	if p.DocumentID != "" {
		docID, err := id.ParseDocumentID(p.DocumentID)
		if err != nil {
			return models.Event{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid document_id")
		}
		ev.DocumentID = docID
	}
	return ev, ev.Validate()
}

// Register binds both handlers to their topics on router.
func Register(router *consumer.Router, r Reconciler, deliveryTopic, paymentTopic string, logger *slog.Logger) {
	router.Register(deliveryTopic, NewDeliveryHandler(r, logger))
	router.Register(paymentTopic, NewPaymentHandler(r, logger))
}
