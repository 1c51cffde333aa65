package bill

import (
	"context"
	"sort"
	"sync"

	"billtrack/internal/billing/models"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
)

type InMemory struct {
	mu    sync.RWMutex
	bills map[id.BillID]*models.Bill
}

func NewInMemory() *InMemory {
	return &InMemory{bills: make(map[id.BillID]*models.Bill)}
}

func (s *InMemory) Create(_ context.Context, b *models.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bills[b.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	for _, existing := range s.bills {
		if existing.Number == b.Number {
			return sentinel.ErrAlreadyUsed
		}
	}
	cp := *b
	s.bills[b.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, billID id.BillID) (*models.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bills[billID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// List returns matching bills newest first.
func (s *InMemory) List(_ context.Context, filter Filter) ([]*models.Bill, error) {
	s.mu.RLock()
	out := make([]*models.Bill, 0, len(s.bills))
	for _, b := range s.bills {
		if filter.matches(b) {
			cp := *b
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number > out[j].Number
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
