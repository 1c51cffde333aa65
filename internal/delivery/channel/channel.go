// Package channel holds the delivery collaborators a document can be handed
// to. Each Sender returns the collaborator's reference for the hand-off,
// which later callbacks quote back.
package channel

import (
	"context"
	"errors"
	"fmt"

	"billtrack/internal/billing/models"
)

// Message is what gets delivered for one attempt.
type Message struct {
	DocumentNumber   string
	TrackingNumber   string
	RecipientName    string
	RecipientContact string
	Subject          string
	Body             string
}

// Sender delivers a message and returns the external reference.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Error is a send failure. Permanent errors are not retried.
type Error struct {
	Channel   models.Channel
	Permanent bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s channel: %v", e.Channel, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func permanent(ch models.Channel, err error) error {
	return &Error{Channel: ch, Permanent: true, Err: err}
}

func transient(ch models.Channel, err error) error {
	return &Error{Channel: ch, Err: err}
}

// IsRetryable reports whether err may succeed on another attempt. Errors not
// produced by a channel are treated as retryable.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return !ce.Permanent
	}
	return true
}

// ErrNotConfigured is returned for a channel with no collaborator wired.
var ErrNotConfigured = errors.New("channel not configured")

// Registry maps channels to their senders.
type Registry struct {
	senders map[models.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

// Register wires sender for ch, replacing any previous one.
func (r *Registry) Register(ch models.Channel, sender Sender) *Registry {
	r.senders[ch] = sender
	return r
}

func (r *Registry) For(ch models.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, fmt.Errorf("%s: %w", ch, ErrNotConfigured)
	}
	return s, nil
}

func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
