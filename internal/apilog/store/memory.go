package store

import (
	"context"
	"sync"

	"billtrack/internal/apilog"
)

// InMemory keeps the most recent entries up to a fixed capacity.
type InMemory struct {
	mu       sync.RWMutex
	entries  []apilog.Entry
	capacity int
}

func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &InMemory{capacity: capacity}
}

func (s *InMemory) Append(_ context.Context, entry apilog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append([]apilog.Entry(nil), s.entries[over:]...)
	}
	return nil
}

// ListRecent returns up to limit entries, newest first.
func (s *InMemory) ListRecent(_ context.Context, limit int) ([]apilog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]apilog.Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
