// Package service records income on payment and produces period reports.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	billing "billtrack/internal/billing/models"
	ledgermetrics "billtrack/internal/ledger/metrics"
	"billtrack/internal/ledger/models"
	"billtrack/internal/ledger/store"
	"billtrack/internal/policy"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/sentinel"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,BillLookup

type Store interface {
	Append(ctx context.Context, record models.IncomeRecord) error
	FindByDocument(ctx context.Context, docID id.DocumentID) (*models.IncomeRecord, error)
	List(ctx context.Context, q store.Query) ([]models.IncomeRecord, error)
}

// BillLookup resolves the bill number stamped on each record.
type BillLookup interface {
	FindByID(ctx context.Context, billID id.BillID) (*billing.Bill, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	records        Store
	bills          BillLookup
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *ledgermetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithMetrics(m *ledgermetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(records Store, bills BillLookup, opts ...Option) *Service {
	s := &Service{records: records, bills: bills, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordIncome writes the income record for a document that has just become
// Paid. A second call for the same document fails with DuplicateIncome.
// Callers run it inside the document's Execute callback so the status change
// and the record land atomically.
func (s *Service) RecordIncome(ctx context.Context, doc *billing.Document, paymentReference string) (*models.IncomeRecord, error) {
	if doc.Status != billing.StatusPaid {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "income can only be recorded for a paid document")
	}

	record := models.IncomeRecord{
		ID:               id.NewIncomeRecordID(),
		DocumentID:       doc.ID,
		BillID:           doc.BillID,
		OwnerID:          doc.CreatedBy,
		Amount:           doc.Amount,
		PaymentReference: paymentReference,
		RecordedAt:       requestcontext.Now(ctx),
	}
	if s.bills != nil {
		bill, err := s.bills.FindByID(ctx, doc.BillID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load bill for income record")
		}
		if bill != nil {
			record.BillNumber = bill.Number
			record.OwnerID = bill.CreatedBy
		}
	}

	if err := s.records.Append(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			if s.metrics != nil {
				s.metrics.IncrementDuplicate()
			}
			return nil, dErrors.New(dErrors.CodeDuplicateIncome, "income already recorded for this document")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record income")
	}

	if s.auditPublisher != nil {
		if err := s.auditPublisher.Emit(ctx, audit.Event{
			Action:  string(audit.EventIncomeRecorded),
			Subject: doc.Number,
			Reason:  record.Amount.StringFixed(2),
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to audit income record", "document_id", doc.ID.String(), "error", err)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveIncome(record.Amount)
	}
	s.logger.InfoContext(ctx, "income recorded",
		"document_id", doc.ID.String(),
		"amount", record.Amount.StringFixed(2),
	)
	return &record, nil
}

// ReportForPeriod returns every record with start <= recordedAt < end,
// ordered by recordedAt.
func (s *Service) ReportForPeriod(ctx context.Context, start, end time.Time) ([]models.IncomeRecord, error) {
	return s.list(ctx, store.Query{Start: start, End: end})
}

// ReportFor is ReportForPeriod narrowed to what actor may see: admins and
// managers see all income, everyone else only their own bills.
func (s *Service) ReportFor(ctx context.Context, actor id.Actor, start, end time.Time) (models.Report, error) {
	q := store.Query{Start: start, End: end}
	if !policy.SeesAll(actor.Role) {
		q.Owner = actor.UserID
	}
	records, err := s.list(ctx, q)
	if err != nil {
		return models.Report{}, err
	}
	return models.NewReport(start, end, records), nil
}

// HasIncome reports whether the document already has a record.
func (s *Service) HasIncome(ctx context.Context, docID id.DocumentID) (bool, error) {
	_, err := s.records.FindByDocument(ctx, docID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up income record")
	}
	return true, nil
}

func (s *Service) list(ctx context.Context, q store.Query) ([]models.IncomeRecord, error) {
	if q.End.Before(q.Start) {
		return nil, dErrors.New(dErrors.CodeValidation, "end of period must not be before its start")
	}
	records, err := s.records.List(ctx, q)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list income records")
	}
	return records, nil
}
