// Package outbox relays committed outbox rows to Kafka.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Producer publishes one record and waits for the broker ack.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay polls unpublished outbox rows and marks them published once the
// broker acknowledges them. Delivery is at-least-once; consumers dedupe on
// the payload id.
type Relay struct {
	db        *sql.DB
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewRelay(db *sql.DB, producer Producer, topic string, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{db: db, producer: producer, topic: topic, interval: interval, batchSize: batchSize, logger: logger}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if n == r.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows it marked.
// SKIP LOCKED lets several replicas relay concurrently without duplicates.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, aggregate_id, payload
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("select outbox rows: %w", err)
	}

	type entry struct {
		id      string
		key     string
		payload []byte
	}
	var batch []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.key, &e.payload); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate outbox rows: %w", err)
	}

	published := 0
	for _, e := range batch {
		if err := r.producer.Produce(ctx, r.topic, []byte(e.key), e.payload); err != nil {
			// Keep what was acknowledged so far; the rest is retried next tick.
			r.logger.WarnContext(ctx, "outbox publish failed", "outbox_id", e.id, "error", err)
			break
		}
		if _, err := tx.ExecContext(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = $1`, e.id); err != nil {
			return 0, fmt.Errorf("mark outbox row published: %w", err)
		}
		published++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit outbox tx: %w", err)
	}
	return published, nil
}
