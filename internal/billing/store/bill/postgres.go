package bill

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"billtrack/internal/billing/models"
	"billtrack/internal/platform/postgres"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
	txcontext "billtrack/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const billColumns = `id, bill_number, election_type, election_name, amount, due_date, description,
	recipient_name, recipient_address, recipient_email, recipient_phone, created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, b *models.Bill) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO bills (`+billColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.Number, b.ElectionType, b.ElectionName, b.Amount, b.DueDate, b.Description,
		b.RecipientName, b.RecipientAddress, b.RecipientEmail, b.RecipientPhone, b.CreatedBy, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert bill: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, billID id.BillID) (*models.Bill, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT `+billColumns+` FROM bills WHERE id = $1`, billID)
	b, err := scanBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find bill: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*models.Bill, error) {
	var (
		where []string
		args  []any
	)
	if !filter.CreatedBy.IsNil() {
		args = append(args, filter.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.ElectionType != "" {
		args = append(args, filter.ElectionType)
		where = append(where, fmt.Sprintf("election_type = $%d", len(args)))
	}
	query := `SELECT ` + billColumns + ` FROM bills`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, bill_number DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()

	var out []*models.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBill(row scanner) (*models.Bill, error) {
	var b models.Bill
	err := row.Scan(&b.ID, &b.Number, &b.ElectionType, &b.ElectionName, &b.Amount, &b.DueDate, &b.Description,
		&b.RecipientName, &b.RecipientAddress, &b.RecipientEmail, &b.RecipientPhone, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
