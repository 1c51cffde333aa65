package models

import (
	"fmt"

	dErrors "billtrack/pkg/domain-errors"
)

// Status is the canonical lifecycle state of a document.
type Status string

const (
	StatusCreated   Status = "created"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSent, StatusDelivered, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further event may be applied.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

// Event is an input to the transition table.
type Event string

const (
	EventDispatchSucceeded Event = "dispatch_succeeded"
	EventDeliveryConfirmed Event = "delivery_confirmed"
	EventPaymentConfirmed  Event = "payment_confirmed"
	EventCancelRequested   Event = "cancel_requested"
)

type transitionKey struct {
	from  Status
	event Event
}

// transitions is the complete set of legal moves. Anything absent is invalid.
// Self-loops make re-dispatch and duplicate delivery reports idempotent.
var transitions = map[transitionKey]Status{
	{StatusCreated, EventDispatchSucceeded}:   StatusSent,
	{StatusSent, EventDispatchSucceeded}:      StatusSent,
	{StatusSent, EventDeliveryConfirmed}:      StatusDelivered,
	{StatusDelivered, EventDeliveryConfirmed}: StatusDelivered,
	{StatusDelivered, EventPaymentConfirmed}:  StatusPaid,
	{StatusCreated, EventCancelRequested}:     StatusCancelled,
	{StatusSent, EventCancelRequested}:        StatusCancelled,
	{StatusDelivered, EventCancelRequested}:   StatusCancelled,
}

// Transition returns the status reached by applying event to current.
func Transition(current Status, event Event) (Status, error) {
	if current.IsTerminal() {
		return current, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("document is %s; no further transitions allowed", current))
	}
	next, ok := transitions[transitionKey{from: current, event: event}]
	if !ok {
		return current, dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("cannot apply %s to a %s document", event, current))
	}
	return next, nil
}
