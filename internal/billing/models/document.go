package models

import (
	"time"

	"github.com/shopspring/decimal"

	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
)

// DocumentType classifies the artifact. Bills always produce an invoice.
type DocumentType string

const (
	DocumentInvoice DocumentType = "invoice"
	DocumentReceipt DocumentType = "receipt"
	DocumentReport  DocumentType = "report"
)

// DeliveryAttempt is one hand-off of a document to a channel. Attempts are
// owned by their document and never shared.
type DeliveryAttempt struct {
	ID                id.AttemptID  `json:"id"`
	TrackingNumber    string        `json:"tracking_number"`
	Channel           Channel       `json:"channel"`
	Status            AttemptStatus `json:"status"`
	RecipientName     string        `json:"recipient_name"`
	RecipientContact  string        `json:"recipient_contact"`
	ExternalReference string        `json:"external_reference,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	SentAt            *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
}

// Document is the trackable artifact whose delivery and payment lifecycle is
// reconciled from external signals.
//
// Invariants:
//   - Status only moves along the transition table (see Transition)
//   - Attempts are append-only and in chronological order
//   - LastEventAt never decreases; only reconciled external events move it
//   - Paid and Cancelled are terminal
type Document struct {
	ID          id.DocumentID     `json:"id"`
	Number      string            `json:"document_number"`
	BillID      id.BillID         `json:"bill_id"`
	Type        DocumentType      `json:"document_type"`
	Title       string            `json:"title"`
	Amount      decimal.Decimal   `json:"amount"`
	Status      Status            `json:"status"`
	Attempts    []DeliveryAttempt `json:"delivery_attempts"`
	LastEventAt time.Time         `json:"last_event_at"`
	CreatedBy   id.UserID         `json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Version     int               `json:"-"`
}

// NewInvoice builds the invoice document that accompanies a new bill.
func NewInvoice(bill *Bill, number string, now time.Time) *Document {
	return &Document{
		ID:        id.NewDocumentID(),
		Number:    number,
		BillID:    bill.ID,
		Type:      DocumentInvoice,
		Title:     "ใบเรียกเก็บเงิน - " + bill.ElectionName,
		Amount:    bill.Amount,
		Status:    StatusCreated,
		Attempts:  []DeliveryAttempt{},
		CreatedBy: bill.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so stores never hand out shared attempt slices.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Attempts = make([]DeliveryAttempt, len(d.Attempts))
	copy(cp.Attempts, d.Attempts)
	return &cp
}

// CanDispatch allows re-dispatch until the document has been delivered.
func (d *Document) CanDispatch() error {
	if d.Status != StatusCreated && d.Status != StatusSent {
		return dErrors.New(dErrors.CodeInvalidTransition, "document can only be dispatched while created or sent")
	}
	return nil
}

// AddAttempt appends a pending attempt.
func (d *Document) AddAttempt(attempt DeliveryAttempt, now time.Time) {
	attempt.Status = AttemptPending
	attempt.CreatedAt = now
	d.Attempts = append(d.Attempts, attempt)
	d.UpdatedAt = now
}

// Attempt returns the attempt with the given id, or nil.
func (d *Document) Attempt(attemptID id.AttemptID) *DeliveryAttempt {
	for i := range d.Attempts {
		if d.Attempts[i].ID == attemptID {
			return &d.Attempts[i]
		}
	}
	return nil
}

// AttemptByReference returns the most recent attempt carrying ref, or nil.
func (d *Document) AttemptByReference(ref string) *DeliveryAttempt {
	if ref == "" {
		return nil
	}
	for i := len(d.Attempts) - 1; i >= 0; i-- {
		if d.Attempts[i].ExternalReference == ref {
			return &d.Attempts[i]
		}
	}
	return nil
}

// AttemptByTrackingNumber returns the attempt issued trackingNumber, or nil.
func (d *Document) AttemptByTrackingNumber(trackingNumber string) *DeliveryAttempt {
	for i := range d.Attempts {
		if d.Attempts[i].TrackingNumber == trackingNumber {
			return &d.Attempts[i]
		}
	}
	return nil
}

// ApplyDispatchSuccess records the collaborator's reference and moves the
// document to Sent. When the document left the dispatchable states while the
// call was in flight, the attempt is still recorded and the returned error
// reports the rejected transition.
func (d *Document) ApplyDispatchSuccess(attemptID id.AttemptID, ref string, now time.Time) error {
	attempt := d.Attempt(attemptID)
	if attempt == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "delivery attempt not found on document")
	}
	attempt.Status = AttemptSucceeded
	attempt.ExternalReference = ref
	attempt.SentAt = &now
	d.UpdatedAt = now
	return d.apply(EventDispatchSucceeded, now)
}

// ApplyDispatchFailure marks the attempt failed; status is unchanged.
func (d *Document) ApplyDispatchFailure(attemptID id.AttemptID, reason string, now time.Time) error {
	attempt := d.Attempt(attemptID)
	if attempt == nil {
		return dErrors.New(dErrors.CodeInvariantViolation, "delivery attempt not found on document")
	}
	attempt.Status = AttemptFailed
	attempt.FailureReason = reason
	d.UpdatedAt = now
	return nil
}

// IsStale reports whether an event stamped at ts predates the last applied one.
func (d *Document) IsStale(ts time.Time) bool {
	return ts.Before(d.LastEventAt)
}

// ObserveEvent advances LastEventAt; it never moves backwards.
func (d *Document) ObserveEvent(ts time.Time) {
	if ts.After(d.LastEventAt) {
		d.LastEventAt = ts
	}
}

// ApplyDelivered confirms delivery, optionally for a specific attempt.
func (d *Document) ApplyDelivered(attempt *DeliveryAttempt, at, now time.Time) error {
	if err := d.apply(EventDeliveryConfirmed, now); err != nil {
		return err
	}
	if attempt != nil && attempt.DeliveredAt == nil {
		attempt.DeliveredAt = &at
		if attempt.Status == AttemptPending {
			attempt.Status = AttemptSucceeded
		}
	}
	return nil
}

// ApplyDeliveryFailed records a failure report against an attempt. A failure
// never regresses document status.
func (d *Document) ApplyDeliveryFailed(attempt *DeliveryAttempt, reason string, now time.Time) error {
	if d.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, "document is "+d.Status.String()+"; no further events allowed")
	}
	if attempt != nil && attempt.DeliveredAt == nil {
		attempt.Status = AttemptFailed
		attempt.FailureReason = reason
	}
	d.UpdatedAt = now
	return nil
}

// ApplyPaid moves a delivered document to Paid.
func (d *Document) ApplyPaid(now time.Time) error {
	return d.apply(EventPaymentConfirmed, now)
}

// Cancel moves the document to the terminal Cancelled state.
func (d *Document) Cancel(now time.Time) error {
	return d.apply(EventCancelRequested, now)
}

func (d *Document) apply(event Event, now time.Time) error {
	next, err := Transition(d.Status, event)
	if err != nil {
		return err
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}
