//go:build integration

package stream

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billing "billtrack/internal/billing/models"
	"billtrack/internal/platform/kafka/consumer"
	"billtrack/internal/platform/kafka/producer"
	"billtrack/internal/reconcile/models"
	id "billtrack/pkg/domain"
	"billtrack/pkg/testutil/containers"
)

type channelReconciler struct {
	events chan models.Event
}

func (r channelReconciler) ApplyEvent(_ context.Context, ev models.Event) (*billing.Document, error) {
	r.events <- ev
	return &billing.Document{}, nil
}

func (r channelReconciler) ApplyCallback(_ context.Context, ev models.Event) (*billing.Document, error) {
	r.events <- ev
	return &billing.Document{}, nil
}

func TestConsumeGatewayTopics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	rp := containers.GetManager().GetRedpanda(t)
	suffix := uuid.NewString()
	deliveryTopic := "delivery-" + suffix
	paymentTopic := "payment-" + suffix

	prod, err := producer.New(rp.Brokers)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.EnsureTopics(ctx, 1, 1, deliveryTopic, paymentTopic))

	rec := channelReconciler{events: make(chan models.Event, 4)}
	router := consumer.NewRouter(discard(), nil)
	Register(router, rec, deliveryTopic, paymentTopic, discard())

	cons, err := consumer.New(consumer.Config{
		Brokers: rp.Brokers,
		Group:   "test-" + suffix,
		Topics:  router.Topics(),
	}, router, discard())
	require.NoError(t, err)
	defer cons.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = cons.Run(runCtx) }()

	docID := id.NewDocumentID()
	require.NoError(t, prod.Produce(ctx, deliveryTopic, []byte(docID.String()),
		[]byte(`{"document_id":"`+docID.String()+`","kind":"delivered","timestamp":"2026-06-01T09:00:00Z","external_reference":"EF123456789TH"}`)))
	require.NoError(t, prod.Produce(ctx, paymentTopic, nil,
		[]byte(`{"timestamp":"2026-06-02T09:00:00Z","external_reference":"KTB-778812"}`)))

	got := map[models.Kind]models.Event{}
	for len(got) < 2 {
		select {
		case ev := <-rec.events:
			got[ev.Kind] = ev
		case <-ctx.Done():
			t.Fatalf("timed out; received %d of 2 events", len(got))
		}
	}

	delivered := got[models.KindDelivered]
	assert.Equal(t, docID, delivered.DocumentID)
	assert.Equal(t, "kafka:"+deliveryTopic, delivered.Source)

	paid := got[models.KindPaymentConfirmed]
	assert.True(t, paid.DocumentID.IsNil())
	assert.Equal(t, "KTB-778812", paid.ExternalReference)
}
