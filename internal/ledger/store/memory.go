package store

import (
	"context"
	"sort"
	"sync"

	"billtrack/internal/ledger/models"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	records    []models.IncomeRecord
	byDocument map[id.DocumentID]int
}

func NewInMemory() *InMemory {
	return &InMemory{byDocument: make(map[id.DocumentID]int)}
}

func (s *InMemory) Append(_ context.Context, record models.IncomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byDocument[record.DocumentID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.byDocument[record.DocumentID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

func (s *InMemory) FindByDocument(_ context.Context, docID id.DocumentID) (*models.IncomeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byDocument[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r := s.records[i]
	return &r, nil
}

// List returns matching records ordered by recorded_at.
func (s *InMemory) List(_ context.Context, q Query) ([]models.IncomeRecord, error) {
	s.mu.RLock()
	var out []models.IncomeRecord
	for _, r := range s.records {
		if r.RecordedAt.Before(q.Start) || !r.RecordedAt.Before(q.End) {
			continue
		}
		if !q.Owner.IsNil() && r.OwnerID != q.Owner {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}
