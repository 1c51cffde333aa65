// Package memory keeps audit events in process for tests and single-node
// runs without a database.
package memory

import (
	"context"
	"slices"
	"sync"

	id "billtrack/pkg/domain"
	audit "billtrack/pkg/platform/audit"
)

type InMemoryStore struct {
	mu  sync.RWMutex
	log []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	s.log = append(s.log, event)
	s.mu.Unlock()
	return nil
}

// ListByUser returns the user's events in emission order.
func (s *InMemoryStore) ListByUser(_ context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.where(func(e audit.Event) bool { return e.UserID == userID }), nil
}

// ListBySubject returns the trail of one bill or document number.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	return s.where(func(e audit.Event) bool { return e.Subject == subject }), nil
}

// ListRecent returns up to limit events, newest first. Events sharing a
// timestamp keep reverse emission order.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	out := s.where(func(audit.Event) bool { return true })
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b audit.Event) int { return b.Timestamp.Compare(a.Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) where(keep func(audit.Event) bool) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, e := range s.log {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
