package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "billtrack/pkg/domain"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/audit/store/memory"
	"billtrack/pkg/requestcontext"
)

type PublisherSuite struct {
	suite.Suite
	store *memory.InMemoryStore
	clerk id.UserID
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()
	s.clerk = id.NewUserID()
}

func (s *PublisherSuite) emitted(pub *Publisher) []audit.Event {
	events, err := pub.ListByUser(context.Background(), s.clerk)
	s.Require().NoError(err)
	return events
}

func (s *PublisherSuite) TestSyncEmitKeepsOrder() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	for _, action := range []audit.AuditEvent{audit.EventBillCreated, audit.EventDocumentDispatched, audit.EventIncomeRecorded} {
		s.Require().NoError(pub.Emit(context.Background(), audit.Event{UserID: s.clerk, Action: string(action), Subject: "ELC-6901-0001"}))
	}

	events := s.emitted(pub)
	s.Require().Len(events, 3)
	s.Equal(string(audit.EventBillCreated), events[0].Action)
	s.Equal(string(audit.EventDocumentDispatched), events[1].Action)
	s.Equal(string(audit.EventIncomeRecorded), events[2].Action)
}

func (s *PublisherSuite) TestEnrichment() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	s.Run("fills request metadata and category", func() {
		ctx := requestcontext.WithRequestID(context.Background(), "req-42")
		ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.5",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

		before := time.Now()
		s.Require().NoError(pub.Emit(ctx, audit.Event{UserID: s.clerk, Action: string(audit.EventIncomeRecorded)}))

		events := s.emitted(pub)
		s.Require().Len(events, 1)
		got := events[0]
		s.Equal("req-42", got.RequestID)
		s.Equal("203.0.113.5", got.ClientIP)
		s.Equal("Chrome on Windows 10", got.Device)
		s.Equal(audit.CategoryCompliance, got.Category)
		s.False(got.Timestamp.Before(before))
	})

	s.Run("keeps caller supplied fields", func() {
		other := id.NewUserID()
		at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		s.Require().NoError(pub.Emit(context.Background(), audit.Event{
			UserID:    other,
			Action:    string(audit.EventDeliveryFailed),
			Category:  audit.CategorySecurity,
			Timestamp: at,
		}))

		events, err := pub.ListByUser(context.Background(), other)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(at, events[0].Timestamp)
		s.Equal(audit.CategorySecurity, events[0].Category)
	})
}

func (s *PublisherSuite) TestListBySubject() {
	pub := NewPublisher(s.store)
	defer pub.Close()

	s.Require().NoError(pub.Emit(context.Background(), audit.Event{UserID: s.clerk, Action: string(audit.EventDocumentDispatched), Subject: "DOC-6901-0001"}))
	s.Require().NoError(pub.Emit(context.Background(), audit.Event{Action: string(audit.EventPaymentConfirmed), Subject: "DOC-6901-0001"}))
	s.Require().NoError(pub.Emit(context.Background(), audit.Event{UserID: s.clerk, Action: string(audit.EventDocumentDispatched), Subject: "DOC-6901-0002"}))

	events, err := pub.ListBySubject(context.Background(), "DOC-6901-0001")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventDocumentDispatched), events[0].Action)
	s.Equal(string(audit.EventPaymentConfirmed), events[1].Action)
}

func (s *PublisherSuite) TestAsyncDrainsOnClose() {
	pub := NewPublisher(s.store, WithAsyncBuffer(32))
	for range 10 {
		s.Require().NoError(pub.Emit(context.Background(), audit.Event{UserID: s.clerk, Action: string(audit.EventDocumentDispatched)}))
	}
	pub.Close()
	pub.Close()

	events, err := s.store.ListByUser(context.Background(), s.clerk)
	s.Require().NoError(err)
	s.Len(events, 10)
}

// gateStore blocks every Append until release is closed.
type gateStore struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateStore) Append(context.Context, audit.Event) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func TestAsyncBufferFull(t *testing.T) {
	gate := &gateStore{entered: make(chan struct{}, 4), release: make(chan struct{})}
	pub := NewPublisher(gate, WithAsyncBuffer(1))

	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventBillCreated)}))
	<-gate.entered // worker now holds the first event
	require.NoError(t, pub.Emit(context.Background(), audit.Event{Action: string(audit.EventBillCreated)}))

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventBillCreated)})
	assert.ErrorIs(t, err, ErrBufferFull)

	close(gate.release)
	pub.Close()
}

func TestListWithoutReader(t *testing.T) {
	pub := NewPublisher(&gateStore{})
	_, err := pub.ListByUser(context.Background(), id.NewUserID())
	assert.ErrorIs(t, err, ErrNoReader)
	_, err = pub.ListBySubject(context.Background(), "ELC-6901-0001")
	assert.ErrorIs(t, err, ErrNoReader)
}
