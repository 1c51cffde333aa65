package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"billtrack/internal/billing/models"
	billstore "billtrack/internal/billing/store/bill"
	docstore "billtrack/internal/billing/store/document"
	"billtrack/internal/billing/store/sequence"
	"billtrack/internal/delivery/channel"
	deliverymetrics "billtrack/internal/delivery/metrics"
	id "billtrack/pkg/domain"
	dErrors "billtrack/pkg/domain-errors"
	"billtrack/pkg/requestcontext"
)

// scriptedSender returns the queued results in order, then succeeds.
type scriptedSender struct {
	mu      sync.Mutex
	results []error
	calls   int
	onSend  func()
}

func (s *scriptedSender) Send(_ context.Context, msg channel.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.onSend != nil {
		s.onSend()
	}
	if len(s.results) > 0 {
		err := s.results[0]
		s.results = s.results[1:]
		if err != nil {
			return "", err
		}
	}
	return "ref-" + msg.TrackingNumber, nil
}

func transientErr() error {
	return &channel.Error{Channel: models.ChannelEmail, Err: errors.New("gateway timeout")}
}

type DispatcherSuite struct {
	suite.Suite
	ctx       context.Context
	bills     *billstore.InMemory
	documents *docstore.InMemory
	sender    *scriptedSender
	metrics   *deliverymetrics.Metrics
	sleeps    []time.Duration
	owner     id.Actor
	bill      *models.Bill
	doc       *models.Document
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

func (s *DispatcherSuite) SetupTest() {
	now := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.bills = billstore.NewInMemory()
	s.documents = docstore.NewInMemory()
	s.sender = &scriptedSender{}
	s.metrics = deliverymetrics.NewWithRegistry(prometheus.NewRegistry())
	s.sleeps = nil
	s.owner = id.Actor{UserID: id.NewUserID(), Role: id.RoleOfficer}

	bill, err := models.NewBill(models.BillInput{
		ElectionType:     models.ElectionByElection,
		ElectionName:     "เลือกตั้งซ่อม ส.อบจ.",
		Amount:           decimal.RequireFromString("8000"),
		DueDate:          now.AddDate(0, 1, 0),
		RecipientName:    "อบจ.ชลบุรี",
		RecipientAddress: "1 ถนนสุขุมวิท ชลบุรี",
		RecipientEmail:   "finance@chonburi.go.th",
	}, "BILL-20260601-0001", s.owner.UserID, now)
	s.Require().NoError(err)
	s.Require().NoError(s.bills.Create(s.ctx, bill))
	s.bill = bill
	s.doc = models.NewInvoice(bill, "DOC-20260601-0001", now)
	s.Require().NoError(s.documents.Create(s.ctx, s.doc))
}

func (s *DispatcherSuite) dispatcher(opts ...Option) *Dispatcher {
	senders := channel.NewRegistry().
		Register(models.ChannelEmail, s.sender).
		Register(models.ChannelSMS, s.sender).
		Register(models.ChannelPost, s.sender)
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		withSleep(func(_ context.Context, d time.Duration) error {
			s.sleeps = append(s.sleeps, d)
			return nil
		}),
	}
	return New(s.documents, s.bills, sequence.NewGenerator(sequence.NewInMemory(), time.UTC), senders, append(base, opts...)...)
}

func (s *DispatcherSuite) stored() *models.Document {
	doc, err := s.documents.FindByID(s.ctx, s.doc.ID)
	s.Require().NoError(err)
	return doc
}

func (s *DispatcherSuite) TestSuccessMovesCreatedToSent() {
	attempt, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{Notes: "first send"})
	s.Require().NoError(err)

	s.Equal(models.AttemptSucceeded, attempt.Status)
	s.Equal("TRK-20260601-0001", attempt.TrackingNumber)
	s.Equal("ref-TRK-20260601-0001", attempt.ExternalReference)
	s.Equal("finance@chonburi.go.th", attempt.RecipientContact)
	s.NotNil(attempt.SentAt)

	doc := s.stored()
	s.Equal(models.StatusSent, doc.Status)
	s.Len(doc.Attempts, 1)
	s.True(doc.LastEventAt.IsZero())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.DispatchTotal.WithLabelValues("email", "succeeded")))
}

func (s *DispatcherSuite) TestRedispatchKeepsSent() {
	d := s.dispatcher()
	_, err := d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().NoError(err)
	_, err = d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelPost, Payload{})
	s.Require().NoError(err)

	doc := s.stored()
	s.Equal(models.StatusSent, doc.Status)
	s.Require().Len(doc.Attempts, 2)
	s.Equal(models.ChannelEmail, doc.Attempts[0].Channel)
	s.Equal(models.ChannelPost, doc.Attempts[1].Channel)
	s.Equal(s.bill.RecipientAddress, doc.Attempts[1].RecipientContact)
}

func (s *DispatcherSuite) TestRetriesWithExponentialBackoff() {
	s.sender.results = []error{transientErr(), transientErr()}

	attempt, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().NoError(err)
	s.Equal(models.AttemptSucceeded, attempt.Status)
	s.Equal(3, s.sender.calls)
	s.Equal([]time.Duration{time.Second, 2 * time.Second}, s.sleeps)
}

func (s *DispatcherSuite) TestExhaustedRetriesLeaveStatusUnchanged() {
	s.sender.results = []error{transientErr(), transientErr(), transientErr()}

	attempt, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	s.Equal(3, s.sender.calls)
	s.Require().NotNil(attempt)
	s.Equal(models.AttemptFailed, attempt.Status)
	s.Contains(attempt.FailureReason, "gateway timeout")

	doc := s.stored()
	s.Equal(models.StatusCreated, doc.Status)
	s.Equal(models.AttemptFailed, doc.Attempts[0].Status)
}

func (s *DispatcherSuite) TestPermanentErrorIsNotRetried() {
	s.sender.results = []error{&channel.Error{Channel: models.ChannelEmail, Permanent: true, Err: errors.New("mailbox does not exist")}}

	_, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	s.Equal(1, s.sender.calls)
	s.Empty(s.sleeps)
}

func (s *DispatcherSuite) TestMissingContactCreatesNoAttempt() {
	_, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelSMS, Payload{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(0, s.sender.calls)
	s.Empty(s.stored().Attempts)
}

func (s *DispatcherSuite) TestDeliveredDocumentCannotBeDispatched() {
	_, err := s.documents.Execute(s.ctx, s.doc.ID, func(_ context.Context, d *models.Document) error {
		d.Status = models.StatusDelivered
		return nil
	})
	s.Require().NoError(err)

	_, err = s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	s.Equal(0, s.sender.calls)
}

func (s *DispatcherSuite) TestCancelledWhileInFlight() {
	s.sender.onSend = func() {
		_, err := s.documents.Execute(s.ctx, s.doc.ID, func(_ context.Context, d *models.Document) error {
			return d.Cancel(time.Now())
		})
		s.Require().NoError(err)
	}

	attempt, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().NoError(err)
	s.Equal(models.AttemptSucceeded, attempt.Status)

	doc := s.stored()
	s.Equal(models.StatusCancelled, doc.Status)
	s.Equal("ref-TRK-20260601-0001", doc.Attempts[0].ExternalReference)
}

func (s *DispatcherSuite) TestOpenCircuitAllowsSingleTrialCall() {
	d := s.dispatcher(WithBreakerThresholds(2, 1))
	s.sender.results = []error{transientErr(), transientErr(), transientErr()}

	_, err := d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	s.Equal(2, s.sender.calls, "breaker opened on the second failure")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CircuitState.WithLabelValues("email")))

	_, err = d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	s.Equal(3, s.sender.calls, "one trial call while open")

	_, err = d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().NoError(err)
	s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitState.WithLabelValues("email")))
}

func (s *DispatcherSuite) TestPermanentErrorsLeaveCircuitClosed() {
	d := s.dispatcher()
	for range 5 {
		s.sender.results = []error{&channel.Error{Channel: models.ChannelEmail, Permanent: true, Err: errors.New("mailbox does not exist")}}
		_, err := d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
		s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	}
	s.Equal(5, s.sender.calls)
	s.False(d.breakers[models.ChannelEmail].IsOpen())

	s.sender.calls = 0
	s.sender.results = []error{transientErr(), transientErr()}
	attempt, err := d.Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().NoError(err)
	s.Equal(models.AttemptSucceeded, attempt.Status)
	s.Equal(3, s.sender.calls, "full retry budget while the channel is healthy")
	s.Equal(0.0, testutil.ToFloat64(s.metrics.CircuitState.WithLabelValues("email")))
}

func (s *DispatcherSuite) TestCallerCancellationLeavesCircuitClosed() {
	d := s.dispatcher(WithBreakerThresholds(1, 1))
	ctx, cancel := context.WithCancel(s.ctx)
	s.sender.onSend = cancel
	s.sender.results = []error{context.Canceled, context.Canceled, context.Canceled}

	_, err := d.Dispatch(ctx, s.owner, s.doc.ID, models.ChannelEmail, Payload{})
	s.Require().Error(err)
	s.False(d.breakers[models.ChannelEmail].IsOpen())
}

func (s *DispatcherSuite) TestCapabilityChecks() {
	s.Run("read-only role", func() {
		_, err := s.dispatcher().Dispatch(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleStaff}, s.doc.ID, models.ChannelEmail, Payload{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("officer of another bill", func() {
		_, err := s.dispatcher().Dispatch(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleOfficer}, s.doc.ID, models.ChannelEmail, Payload{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("manager of another bill", func() {
		_, err := s.dispatcher().Dispatch(s.ctx, id.Actor{UserID: id.NewUserID(), Role: id.RoleManager}, s.doc.ID, models.ChannelEmail, Payload{})
		s.Require().NoError(err)
	})
}

func (s *DispatcherSuite) TestUnconfiguredChannel() {
	_, err := s.dispatcher().Dispatch(s.ctx, s.owner, s.doc.ID, models.ChannelHandDelivery, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeChannelUnavailable))
	s.Empty(s.stored().Attempts)
}

func (s *DispatcherSuite) TestUnknownDocument() {
	_, err := s.dispatcher().Dispatch(s.ctx, s.owner, id.NewDocumentID(), models.ChannelEmail, Payload{})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
