// Package document persists documents together with their delivery attempts.
package document

import (
	"context"
	"sort"
	"sync"
	"time"

	"billtrack/internal/billing/models"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/sentinel"
)

// numShards spreads per-document locks so unrelated documents never contend.
const numShards = 128

const defaultLockTimeout = 5 * time.Second

// InMemory is a map-backed document store. Every read returns a deep copy,
// so callers can only change stored state through Save or Execute.
type InMemory struct {
	mu     sync.RWMutex
	docs   map[id.DocumentID]*models.Document
	shards [numShards]sync.Mutex
	// lockTimeout bounds how long Execute waits on a busy document.
	lockTimeout time.Duration
}

func NewInMemory() *InMemory {
	return &InMemory{
		docs:        make(map[id.DocumentID]*models.Document),
		lockTimeout: defaultLockTimeout,
	}
}

func (s *InMemory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	for _, existing := range s.docs {
		if existing.Number == doc.Number {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.docs[doc.ID] = doc.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *InMemory) FindByBill(_ context.Context, billID id.BillID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.BillID == billID && doc.Type == models.DocumentInvoice {
			return doc.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByBills(_ context.Context, billIDs []id.BillID) (map[id.BillID]*models.Document, error) {
	wanted := make(map[id.BillID]struct{}, len(billIDs))
	for _, b := range billIDs {
		wanted[b] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.BillID]*models.Document, len(billIDs))
	for _, doc := range s.docs {
		if _, ok := wanted[doc.BillID]; ok && doc.Type == models.DocumentInvoice {
			out[doc.BillID] = doc.Clone()
		}
	}
	return out, nil
}

// FindByExternalReference resolves the document owning an attempt with ref.
func (s *InMemory) FindByExternalReference(_ context.Context, ref string) (*models.Document, error) {
	if ref == "" {
		return nil, sentinel.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.AttemptByReference(ref) != nil {
			return doc.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) FindByTrackingNumber(_ context.Context, trackingNumber string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		for _, a := range doc.Attempts {
			if a.TrackingNumber == trackingNumber {
				return doc.Clone(), nil
			}
		}
	}
	return nil, sentinel.ErrNotFound
}

// ListAwaitingDelivery returns Sent documents with a referenced attempt on
// channel, oldest first.
func (s *InMemory) ListAwaitingDelivery(_ context.Context, channel models.Channel, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	var out []*models.Document
	for _, doc := range s.docs {
		if doc.Status != models.StatusSent {
			continue
		}
		for _, a := range doc.Attempts {
			if a.Channel == channel && a.ExternalReference != "" && a.DeliveredAt == nil {
				out = append(out, doc.Clone())
				break
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Save persists doc if its version still matches the stored one.
func (s *InMemory) Save(ctx context.Context, doc *models.Document) error {
	unlock, err := s.lock(ctx, doc.ID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(doc)
}

// Execute runs fn against the latest copy of the document while holding its
// lock. The document is persisted only when fn returns nil.
func (s *InMemory) Execute(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context, doc *models.Document) error) (*models.Document, error) {
	unlock, err := s.lock(ctx, docID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := s.FindByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if err := fn(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return doc.Clone(), nil
}

func (s *InMemory) save(doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[doc.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != doc.Version {
		return sentinel.ErrConflict
	}
	doc.Version++
	s.docs[doc.ID] = doc.Clone()
	return nil
}

// lock acquires the shard for docID, giving up when ctx ends or the lock
// timeout elapses.
func (s *InMemory) lock(ctx context.Context, docID id.DocumentID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "document lock aborted: context cancelled")
	}
	shard := &s.shards[hashString(docID.String())%numShards]

	acquired := make(chan struct{})
	go func() {
		shard.Lock()
		close(acquired)
	}()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case <-acquired:
		return shard.Unlock, nil
	case <-ctx.Done():
	case <-timer.C:
	}
	// Hand the lock back once the waiting goroutine gets it.
	go func() {
		<-acquired
		shard.Unlock()
	}()
	return nil, sentinel.ErrLockTimeout
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
