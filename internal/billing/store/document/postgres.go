package document

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"billtrack/internal/billing/models"
	"billtrack/internal/platform/postgres"
	id "billtrack/pkg/domain"
	"billtrack/pkg/platform/sentinel"
	txcontext "billtrack/pkg/platform/tx"
)

// PostgresStore persists documents and their attempts in PostgreSQL.
// Execute relies on SELECT ... FOR UPDATE; Save is compare-and-swap on version.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const documentColumns = `id, document_number, bill_id, document_type, title, amount, status,
	last_event_at, created_by, created_at, updated_at, version`

const attemptColumns = `id, document_id, tracking_number, channel, status, recipient_name, recipient_contact,
	external_reference, failure_reason, notes, created_at, sent_at, delivered_at`

func (s *PostgresStore) Create(ctx context.Context, doc *models.Document) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			doc.ID, doc.Number, doc.BillID, doc.Type, doc.Title, doc.Amount, doc.Status,
			nullTime(doc.LastEventAt), doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt, doc.Version,
		)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return s.upsertAttempts(ctx, doc)
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	return s.findOne(ctx, `WHERE id = $1`, docID)
}

func (s *PostgresStore) FindByBill(ctx context.Context, billID id.BillID) (*models.Document, error) {
	return s.findOne(ctx, `WHERE bill_id = $1 AND document_type = 'invoice'`, billID)
}

func (s *PostgresStore) FindByExternalReference(ctx context.Context, ref string) (*models.Document, error) {
	if ref == "" {
		return nil, sentinel.ErrNotFound
	}
	return s.findOne(ctx, `WHERE id = (
		SELECT document_id FROM delivery_attempts
		WHERE external_reference = $1
		ORDER BY created_at DESC
		LIMIT 1)`, ref)
}

func (s *PostgresStore) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Document, error) {
	return s.findOne(ctx, `WHERE id = (
		SELECT document_id FROM delivery_attempts WHERE tracking_number = $1)`, trackingNumber)
}

func (s *PostgresStore) FindByBills(ctx context.Context, billIDs []id.BillID) (map[id.BillID]*models.Document, error) {
	out := make(map[id.BillID]*models.Document, len(billIDs))
	if len(billIDs) == 0 {
		return out, nil
	}
	raw := make([]string, len(billIDs))
	for i, b := range billIDs {
		raw[i] = b.String()
	}
	docs, err := s.findMany(ctx, `WHERE bill_id = ANY($1::uuid[]) AND document_type = 'invoice'`, pq.Array(raw))
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		out[doc.BillID] = doc
	}
	return out, nil
}

func (s *PostgresStore) ListAwaitingDelivery(ctx context.Context, channel models.Channel, limit int) ([]*models.Document, error) {
	return s.findMany(ctx, `WHERE status = 'sent' AND EXISTS (
		SELECT 1 FROM delivery_attempts a
		WHERE a.document_id = documents.id
		  AND a.channel = $1
		  AND a.external_reference IS NOT NULL
		  AND a.delivered_at IS NULL)
		ORDER BY updated_at
		LIMIT $2`, channel, limit)
}

func (s *PostgresStore) Save(ctx context.Context, doc *models.Document) error {
	return txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		return s.save(ctx, doc)
	})
}

// Execute locks the document row for the lifetime of a transaction carried in
// ctx, so stores called from fn (ledger, audit outbox) commit atomically with it.
func (s *PostgresStore) Execute(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context, doc *models.Document) error) (*models.Document, error) {
	var result *models.Document
	err := txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		doc, err := s.findOne(ctx, `WHERE id = $1 FOR UPDATE`, docID)
		if err != nil {
			return err
		}
		if err := fn(ctx, doc); err != nil {
			return err
		}
		if err := s.save(ctx, doc); err != nil {
			return err
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PostgresStore) save(ctx context.Context, doc *models.Document) error {
	res, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		UPDATE documents SET
			title = $2,
			status = $3,
			last_event_at = $4,
			updated_at = $5,
			version = version + 1
		WHERE id = $1 AND version = $6`,
		doc.ID, doc.Title, doc.Status, nullTime(doc.LastEventAt), doc.UpdatedAt, doc.Version,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if rows == 0 {
		if _, findErr := s.findOne(ctx, `WHERE id = $1`, doc.ID); errors.Is(findErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	doc.Version++
	return s.upsertAttempts(ctx, doc)
}

func (s *PostgresStore) upsertAttempts(ctx context.Context, doc *models.Document) error {
	exec := txcontext.Pick(ctx, s.db)
	for i, a := range doc.Attempts {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO delivery_attempts (id, document_id, seq, tracking_number, channel, status,
				recipient_name, recipient_contact, external_reference, failure_reason, notes,
				created_at, sent_at, delivered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				external_reference = EXCLUDED.external_reference,
				failure_reason = EXCLUDED.failure_reason,
				notes = EXCLUDED.notes,
				sent_at = EXCLUDED.sent_at,
				delivered_at = EXCLUDED.delivered_at`,
			a.ID, doc.ID, i, a.TrackingNumber, a.Channel, a.Status,
			a.RecipientName, a.RecipientContact, nullString(a.ExternalReference), a.FailureReason, a.Notes,
			a.CreatedAt, a.SentAt, a.DeliveredAt,
		)
		if err != nil {
			return fmt.Errorf("upsert delivery attempt %s: %w", a.TrackingNumber, err)
		}
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, where string, args ...any) (*models.Document, error) {
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents `+where, args...)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	if err := s.loadAttempts(ctx, []*models.Document{doc}); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) findMany(ctx context.Context, where string, args ...any) ([]*models.Document, error) {
	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `SELECT `+documentColumns+` FROM documents `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	if err := s.loadAttempts(ctx, docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *PostgresStore) loadAttempts(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	byID := make(map[id.DocumentID]*models.Document, len(docs))
	raw := make([]string, 0, len(docs))
	for _, d := range docs {
		d.Attempts = []models.DeliveryAttempt{}
		byID[d.ID] = d
		raw = append(raw, d.ID.String())
	}

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM delivery_attempts
		WHERE document_id = ANY($1::uuid[])
		ORDER BY document_id, seq`, pq.Array(raw))
	if err != nil {
		return fmt.Errorf("load delivery attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a     models.DeliveryAttempt
			docID id.DocumentID
			ref   sql.NullString
		)
		if err := rows.Scan(&a.ID, &docID, &a.TrackingNumber, &a.Channel, &a.Status, &a.RecipientName,
			&a.RecipientContact, &ref, &a.FailureReason, &a.Notes, &a.CreatedAt, &a.SentAt, &a.DeliveredAt); err != nil {
			return fmt.Errorf("scan delivery attempt: %w", err)
		}
		a.ExternalReference = ref.String
		if doc, ok := byID[docID]; ok {
			doc.Attempts = append(doc.Attempts, a)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*models.Document, error) {
	var (
		doc         models.Document
		lastEventAt sql.NullTime
	)
	if err := row.Scan(&doc.ID, &doc.Number, &doc.BillID, &doc.Type, &doc.Title, &doc.Amount, &doc.Status,
		&lastEventAt, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt, &doc.Version); err != nil {
		return nil, err
	}
	if lastEventAt.Valid {
		doc.LastEventAt = lastEventAt.Time
	}
	return &doc, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
