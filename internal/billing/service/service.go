// Package service implements bill creation and the document lifecycle use
// cases that are driven by users rather than by external signals.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	billingmetrics "billtrack/internal/billing/metrics"
	"billtrack/internal/billing/models"
	billstore "billtrack/internal/billing/store/bill"
	"billtrack/internal/policy"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/sentinel"
	txcontext "billtrack/pkg/platform/tx"
	"billtrack/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks BillStore,DocumentStore,NumberGenerator

type BillStore interface {
	Create(ctx context.Context, b *models.Bill) error
	FindByID(ctx context.Context, billID id.BillID) (*models.Bill, error)
	List(ctx context.Context, filter billstore.Filter) ([]*models.Bill, error)
}

type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error)
	FindByBill(ctx context.Context, billID id.BillID) (*models.Document, error)
	FindByBills(ctx context.Context, billIDs []id.BillID) (map[id.BillID]*models.Document, error)
	Execute(ctx context.Context, docID id.DocumentID, fn func(ctx context.Context, doc *models.Document) error) (*models.Document, error)
}

// NumberGenerator issues PREFIX-YYYYMMDD-NNNN identifiers.
type NumberGenerator interface {
	Next(ctx context.Context, prefix string, now time.Time) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// BillView is a bill together with its invoice document. The document's
// status is the bill's status.
type BillView struct {
	*models.Bill
	Status   models.Status    `json:"status"`
	Document *models.Document `json:"document,omitempty"`
}

type Service struct {
	bills          BillStore
	documents      DocumentStore
	numbers        NumberGenerator
	tx             txcontext.Runner
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *billingmetrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func WithMetrics(m *billingmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(bills BillStore, documents DocumentStore, numbers NumberGenerator, tx txcontext.Runner, opts ...Option) *Service {
	s := &Service{
		bills:     bills,
		documents: documents,
		numbers:   numbers,
		tx:        tx,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBill validates input and creates the bill and its invoice document in
// one unit of work. The document starts Created with no attempts.
func (s *Service) CreateBill(ctx context.Context, actor id.Actor, in models.BillInput) (*models.Bill, *models.Document, error) {
	if err := policy.RequireMutator(actor); err != nil {
		s.emitDenied(ctx, actor, "create_bill")
		return nil, nil, err
	}
	now := requestcontext.Now(ctx)

	bill, err := models.NewBill(in, "", actor.UserID, now)
	if err != nil {
		return nil, nil, err
	}

	var doc *models.Document
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		number, err := s.numbers.Next(ctx, models.PrefixBill, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate bill number")
		}
		bill.Number = number

		docNumber, err := s.numbers.Next(ctx, models.PrefixDocument, now)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate document number")
		}
		doc = models.NewInvoice(bill, docNumber, now)

		if err := s.bills.Create(ctx, bill); err != nil {
			return wrapStoreErr(err, "failed to create bill")
		}
		if err := s.documents.Create(ctx, doc); err != nil {
			return wrapStoreErr(err, "failed to create document")
		}
		s.emit(ctx, audit.Event{
			UserID:  actor.UserID,
			Subject: bill.Number,
			Action:  string(audit.EventBillCreated),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementBillsCreated(string(bill.ElectionType))
	}
	s.logger.InfoContext(ctx, "bill created",
		"bill_number", bill.Number,
		"document_number", doc.Number,
		"user_id", actor.UserID.String(),
	)
	return bill, doc, nil
}

// GetBill returns the bill with its document. Records the actor may not see
// are reported as not found.
func (s *Service) GetBill(ctx context.Context, actor id.Actor, billID id.BillID) (*BillView, error) {
	bill, err := s.bills.FindByID(ctx, billID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load bill")
	}
	if !policy.CanView(actor, bill.CreatedBy) {
		return nil, dErrors.New(dErrors.CodeNotFound, "bill not found")
	}
	doc, err := s.documents.FindByBill(ctx, billID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapStoreErr(err, "failed to load document")
	}
	return newBillView(bill, doc), nil
}

// ListBills returns bills newest first. Admins and managers see every bill,
// everyone else only their own. An empty electionType lists all types.
func (s *Service) ListBills(ctx context.Context, actor id.Actor, electionType models.ElectionType) ([]BillView, error) {
	if electionType != "" && !electionType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown election type")
	}
	filter := billstore.Filter{ElectionType: electionType}
	if !policy.SeesAll(actor.Role) {
		filter.CreatedBy = actor.UserID
	}

	bills, err := s.bills.List(ctx, filter)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list bills")
	}
	ids := make([]id.BillID, 0, len(bills))
	for _, b := range bills {
		ids = append(ids, b.ID)
	}
	docs, err := s.documents.FindByBills(ctx, ids)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load documents")
	}

	views := make([]BillView, 0, len(bills))
	for _, b := range bills {
		views = append(views, *newBillView(b, docs[b.ID]))
	}
	return views, nil
}

// GetDocument returns a document visible to actor.
func (s *Service) GetDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error) {
	doc, err := s.documents.FindByID(ctx, docID)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load document")
	}
	if !policy.CanView(actor, doc.CreatedBy) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	return doc, nil
}

// CancelDocument moves a non-terminal document to Cancelled. Income already
// recorded for the document is left untouched.
func (s *Service) CancelDocument(ctx context.Context, actor id.Actor, docID id.DocumentID) (*models.Document, error) {
	now := requestcontext.Now(ctx)
	doc, err := s.documents.Execute(ctx, docID, func(ctx context.Context, doc *models.Document) error {
		if err := policy.RequireMutatorOf(actor, doc.CreatedBy); err != nil {
			return err
		}
		if err := doc.Cancel(now); err != nil {
			return err
		}
		s.emit(ctx, audit.Event{
			UserID:  actor.UserID,
			Subject: doc.Number,
			Action:  string(audit.EventDocumentCancelled),
		})
		return nil
	})
	if err != nil {
		if dErrors.Is(err, dErrors.CodeForbidden) {
			s.emitDenied(ctx, actor, "cancel_document")
		}
		return nil, wrapStoreErr(err, "failed to cancel document")
	}

	if s.metrics != nil {
		s.metrics.IncrementCancelled()
	}
	s.logger.InfoContext(ctx, "document cancelled",
		"document_number", doc.Number,
		"user_id", actor.UserID.String(),
	)
	return doc, nil
}

func (s *Service) emitDenied(ctx context.Context, actor id.Actor, action string) {
	s.emit(ctx, audit.Event{
		UserID: actor.UserID,
		Action: string(audit.EventAccessDenied),
		Reason: action,
	})
}

// emit never fails the caller: a lost audit event must not undo a bill or
// cancellation that has already been written.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func newBillView(b *models.Bill, doc *models.Document) *BillView {
	view := &BillView{Bill: b, Document: doc}
	if doc != nil {
		view.Status = doc.Status
	}
	return view
}

// wrapStoreErr leaves coded errors alone and maps store sentinels to codes.
func wrapStoreErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "concurrent modification, retry the request")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "document is busy, retry the request")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
