package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"billtrack/internal/ledger/models"
	"billtrack/internal/platform/postgres"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
	txcontext "billtrack/pkg/platform/tx"
)

// PostgresStore joins the caller's transaction when one is in ctx, so a
// Paid transition and its income record commit together.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, document_id, bill_id, bill_number, owner_id, amount, payment_reference, recorded_at`

func (s *PostgresStore) Append(ctx context.Context, r models.IncomeRecord) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO income_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.DocumentID, r.BillID, r.BillNumber, r.OwnerID, r.Amount, r.PaymentReference, r.RecordedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert income record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByDocument(ctx context.Context, docID id.DocumentID) (*models.IncomeRecord, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM income_records WHERE document_id = $1`, docID)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find income record: %w", err)
	}
	return &r, nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]models.IncomeRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM income_records WHERE recorded_at >= $1 AND recorded_at < $2`
	args := []any{q.Start, q.End}
	if !q.Owner.IsNil() {
		query += ` AND owner_id = $3`
		args = append(args, q.Owner)
	}
	query += ` ORDER BY recorded_at, id`

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list income records: %w", err)
	}
	defer rows.Close()

	var out []models.IncomeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan income record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.IncomeRecord, error) {
	var r models.IncomeRecord
	err := row.Scan(&r.ID, &r.DocumentID, &r.BillID, &r.BillNumber, &r.OwnerID, &r.Amount, &r.PaymentReference, &r.RecordedAt)
	return r, err
}
