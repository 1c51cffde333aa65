package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"billtrack/internal/auth/models"
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

const userColumns = `id, username, password_hash, name, role, authority, team,
	COALESCE(email, ''), COALESCE(phone, ''), active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, u *models.User) error {
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, name, role, authority, team, email, phone, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)`,
		u.ID, u.Username, u.PasswordHash, u.Name, u.Role, u.Authority, u.Team, u.Email, u.Phone, u.Active, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, userID)
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, `WHERE lower(username) = lower($1)`, username)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, userID id.UserID, hash string) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.User, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, args...)
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Role, &u.Authority, &u.Team,
		&u.Email, &u.Phone, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
