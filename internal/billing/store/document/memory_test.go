package document

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"billtrack/internal/billing/models"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/platform/sentinel"
)

type DocumentStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestDocumentStoreSuite(t *testing.T) {
	suite.Run(t, new(DocumentStoreSuite))
}

func (s *DocumentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *DocumentStoreSuite) newDocument() *models.Document {
	now := time.Now()
	return &models.Document{
		ID:        id.NewDocumentID(),
		Number:    "DOC-" + id.NewDocumentID().String()[:8],
		BillID:    id.NewBillID(),
		Type:      models.DocumentInvoice,
		Title:     "invoice",
		Amount:    decimal.NewFromInt(100),
		Status:    models.StatusCreated,
		Attempts:  []models.DeliveryAttempt{},
		CreatedBy: id.NewUserID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *DocumentStoreSuite) TestCreateAndFind() {
	doc := s.newDocument()
	s.Require().NoError(s.store.Create(s.ctx, doc))

	s.Run("by id", func() {
		found, err := s.store.FindByID(s.ctx, doc.ID)
		s.Require().NoError(err)
		s.Equal(doc.Number, found.Number)
	})

	s.Run("by bill", func() {
		found, err := s.store.FindByBill(s.ctx, doc.BillID)
		s.Require().NoError(err)
		s.Equal(doc.ID, found.ID)
	})

	s.Run("unknown id", func() {
		_, err := s.store.FindByID(s.ctx, id.NewDocumentID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate number rejected", func() {
		dup := s.newDocument()
		dup.Number = doc.Number
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyUsed)
	})
}

func (s *DocumentStoreSuite) TestReadsAreCopies() {
	doc := s.newDocument()
	s.Require().NoError(s.store.Create(s.ctx, doc))

	found, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	found.Status = models.StatusPaid

	again, err := s.store.FindByID(s.ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCreated, again.Status)
}

// TestSaveIsCompareAndSwap verifies a stale writer loses with ErrConflict.
func (s *DocumentStoreSuite) TestSaveIsCompareAndSwap() {
	doc := s.newDocument()
	s.Require().NoError(s.store.Create(s.ctx, doc))

	first, _ := s.store.FindByID(s.ctx, doc.ID)
	second, _ := s.store.FindByID(s.ctx, doc.ID)

	first.Title = "first"
	s.Require().NoError(s.store.Save(s.ctx, first))

	second.Title = "second"
	s.ErrorIs(s.store.Save(s.ctx, second), sentinel.ErrConflict)

	found, _ := s.store.FindByID(s.ctx, doc.ID)
	s.Equal("first", found.Title)
	s.Equal(1, found.Version)
}

func (s *DocumentStoreSuite) TestExecute() {
	s.Run("persists on success", func() {
		doc := s.newDocument()
		s.Require().NoError(s.store.Create(s.ctx, doc))

		updated, err := s.store.Execute(s.ctx, doc.ID, func(_ context.Context, d *models.Document) error {
			return d.Cancel(time.Now())
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, updated.Status)

		found, _ := s.store.FindByID(s.ctx, doc.ID)
		s.Equal(models.StatusCancelled, found.Status)
	})

	s.Run("discards on error", func() {
		doc := s.newDocument()
		s.Require().NoError(s.store.Create(s.ctx, doc))

		_, err := s.store.Execute(s.ctx, doc.ID, func(_ context.Context, d *models.Document) error {
			d.Title = "mutated"
			return dErrors.New(dErrors.CodeInvalidTransition, "nope")
		})
		s.Require().Error(err)

		found, _ := s.store.FindByID(s.ctx, doc.ID)
		s.Equal("invoice", found.Title)
	})

	s.Run("unknown document", func() {
		_, err := s.store.Execute(s.ctx, id.NewDocumentID(), func(context.Context, *models.Document) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("cancelled context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		_, err := s.store.Execute(ctx, id.NewDocumentID(), func(context.Context, *models.Document) error { return nil })
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

// TestExecuteSerialisesWriters verifies concurrent read-modify-write cycles on
// one document never lose an update.
func (s *DocumentStoreSuite) TestExecuteSerialisesWriters() {
	doc := s.newDocument()
	s.Require().NoError(s.store.Create(s.ctx, doc))

	const writers = 50
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(s.ctx, doc.ID, func(_ context.Context, d *models.Document) error {
				d.AddAttempt(models.DeliveryAttempt{ID: id.NewAttemptID(), TrackingNumber: string(rune('A' + i%26))}, time.Now())
				return nil
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	found, _ := s.store.FindByID(s.ctx, doc.ID)
	s.Len(found.Attempts, writers)
	s.Equal(writers, found.Version)
}

func (s *DocumentStoreSuite) TestExecuteLockTimeout() {
	doc := s.newDocument()
	s.Require().NoError(s.store.Create(s.ctx, doc))
	s.store.lockTimeout = 20 * time.Millisecond

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_, _ = s.store.Execute(s.ctx, doc.ID, func(context.Context, *models.Document) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := s.store.Execute(s.ctx, doc.ID, func(context.Context, *models.Document) error { return nil })
	s.ErrorIs(err, sentinel.ErrLockTimeout)
	close(release)
}

func (s *DocumentStoreSuite) TestLookupsByAttempt() {
	doc := s.newDocument()
	doc.Status = models.StatusSent
	doc.Attempts = []models.DeliveryAttempt{{
		ID:                id.NewAttemptID(),
		TrackingNumber:    "TRK-20260101-0001",
		Channel:           models.ChannelPost,
		Status:            models.AttemptSucceeded,
		ExternalReference: "EF123456789TH",
	}}
	s.Require().NoError(s.store.Create(s.ctx, doc))
	s.Require().NoError(s.store.Create(s.ctx, s.newDocument()))

	byRef, err := s.store.FindByExternalReference(s.ctx, "EF123456789TH")
	s.Require().NoError(err)
	s.Equal(doc.ID, byRef.ID)

	byTracking, err := s.store.FindByTrackingNumber(s.ctx, "TRK-20260101-0001")
	s.Require().NoError(err)
	s.Equal(doc.ID, byTracking.ID)

	_, err = s.store.FindByExternalReference(s.ctx, "")
	s.ErrorIs(err, sentinel.ErrNotFound)

	awaiting, err := s.store.ListAwaitingDelivery(s.ctx, models.ChannelPost, 10)
	s.Require().NoError(err)
	s.Len(awaiting, 1)

	none, err := s.store.ListAwaitingDelivery(s.ctx, models.ChannelSMS, 10)
	s.Require().NoError(err)
	s.Empty(none)

	byBills, err := s.store.FindByBills(s.ctx, []id.BillID{doc.BillID, id.NewBillID()})
	s.Require().NoError(err)
	s.Len(byBills, 1)
	s.Equal(doc.ID, byBills[doc.BillID].ID)
}
