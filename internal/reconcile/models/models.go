package models

import (
	"strings"
	"time"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

// Kind is the type of an external status signal.
type Kind string

const (
	KindDelivered        Kind = "delivered"
	KindDeliveryFailed   Kind = "delivery_failed"
	KindPaymentConfirmed Kind = "payment_confirmed"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindDelivered, KindDeliveryFailed, KindPaymentConfirmed:
		return true
	}
	return false
}

// IsDelivery reports whether the kind concerns a delivery attempt.
func (k Kind) IsDelivery() bool {
	return k == KindDelivered || k == KindDeliveryFailed
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown event kind")
	}
	return k, nil
}

// Event is an external status signal. DocumentID is nil for gateway callbacks
// that only quote a reference; the document is then resolved by reference.
type Event struct {
	DocumentID        id.DocumentID `json:"document_id"`
	Kind              Kind          `json:"kind"`
	Timestamp         time.Time     `json:"timestamp"`
	ExternalReference string        `json:"external_reference,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	Source            string        `json:"source,omitempty"`
}

// Validate checks the fields every event needs.
func (e Event) Validate() error {
	if !e.Kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown event kind")
	}
	if e.Timestamp.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "event timestamp is required")
	}
	if e.DocumentID.IsNil() && e.ExternalReference == "" {
		return dErrors.New(dErrors.CodeValidation, "document_id or external_reference is required")
	}
	return nil
}

// PendingEvent is an orphan waiting for its retry. Retries counts how many
// times it has already been tried again.
type PendingEvent struct {
	Event    Event     `json:"event"`
	Retries  int       `json:"retries"`
	QueuedAt time.Time `json:"queued_at"`
}
