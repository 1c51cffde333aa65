// Package orphan queues external events whose reference did not match any
// delivery attempt yet, so they can be tried once more after a delay.
package orphan

import (
	"context"
	"sort"
	"sync"
	"time"

	"billtrack/internal/reconcile/models"
)

// Queue schedules pending events and hands out the ones that are due. An
// event returned by Due is removed from the queue, so callers must handle
// the returned events even when Due also reports an error.
type Queue interface {
	Schedule(ctx context.Context, ev models.PendingEvent, due time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]models.PendingEvent, error)
}

type scheduled struct {
	due time.Time
	ev  models.PendingEvent
}

// InMemory is a Queue for single-process deployments.
type InMemory struct {
	mu    sync.Mutex
	items []scheduled
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (q *InMemory) Schedule(_ context.Context, ev models.PendingEvent, due time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, scheduled{due: due, ev: ev})
	sort.SliceStable(q.items, func(i, j int) bool { return q.items[i].due.Before(q.items[j].due) })
	return nil
}

func (q *InMemory) Due(_ context.Context, now time.Time, limit int) ([]models.PendingEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.PendingEvent
	n := 0
	for n < len(q.items) && !q.items[n].due.After(now) {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, q.items[n].ev)
		n++
	}
	q.items = q.items[n:]
	return out, nil
}

// Len reports how many events are waiting.
func (q *InMemory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
