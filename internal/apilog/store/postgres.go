package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"billtrack/internal/apilog"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, e apilog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_logs (id, endpoint, method, status_code, response_time, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Endpoint, e.Method, e.StatusCode, e.ResponseTime.Seconds(), e.ErrorMessage, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]apilog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, endpoint, method, status_code, response_time, error_message, created_at
		FROM api_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list api logs: %w", err)
	}
	defer rows.Close()

	var out []apilog.Entry
	for rows.Next() {
		var (
			e       apilog.Entry
			seconds float64
		)
		if err := rows.Scan(&e.ID, &e.Endpoint, &e.Method, &e.StatusCode, &seconds, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api log: %w", err)
		}
		e.ResponseTime = time.Duration(seconds * float64(time.Second))
		out = append(out, e)
	}
	return out, rows.Err()
}
