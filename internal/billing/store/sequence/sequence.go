// Package sequence hands out the daily counters behind BILL-, DOC- and TRK-
// numbers. Counters restart at 1 every calendar day per prefix.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	txcontext "billtrack/pkg/platform/tx"
)

const dayLayout = "20060102"

// InMemory is a process-local counter store.
type InMemory struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewInMemory() *InMemory {
	return &InMemory{counters: make(map[string]int64)}
}

func (s *InMemory) Next(_ context.Context, prefix string, day time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prefix + "-" + day.Format(dayLayout)
	s.counters[key]++
	return s.counters[key], nil
}

// PostgresStore keeps counters in number_sequences so replicas never collide.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Next atomically increments and returns the counter for (prefix, day).
func (s *PostgresStore) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	query := `
		INSERT INTO number_sequences (prefix, day, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE SET
			value = number_sequences.value + 1
		RETURNING value
	`
	var value int64
	if err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, prefix, day.Format(dayLayout)).Scan(&value); err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", prefix, err)
	}
	return value, nil
}
