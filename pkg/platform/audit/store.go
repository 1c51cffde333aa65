package audit

import (
	"context"

	id "billtrack/pkg/domain"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists persisted events, oldest first.
type Reader interface {
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
