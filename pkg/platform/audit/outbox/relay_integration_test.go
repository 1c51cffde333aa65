//go:build integration

package outbox_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtrack/internal/platform/kafka/consumer"
	"billtrack/internal/platform/kafka/producer"
	id "billtrack/pkg/domain"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/audit/outbox"
	auditpostgres "billtrack/pkg/platform/audit/store/postgres"
	"billtrack/pkg/testutil/containers"
)

func TestRelayPublishesOutboxRows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pg := containers.GetManager().GetPostgres(t)
	rp := containers.GetManager().GetRedpanda(t)
	require.NoError(t, pg.TruncateTables(ctx, "outbox"))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := auditpostgres.New(pg.DB)
	userID := id.NewUserID()
	require.NoError(t, store.Append(ctx, audit.Event{
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Subject:   "DOC-20260301-0001",
		Action:    string(audit.EventDocumentDispatched),
		Reason:    "post",
	}))

	topic := "audit-" + uuid.NewString()
	prod, err := producer.New(rp.Brokers)
	require.NoError(t, err)
	defer prod.Close()
	require.NoError(t, prod.EnsureTopics(ctx, 1, 1, topic))

	relay := outbox.NewRelay(pg.DB, prod, topic, 10*time.Millisecond, 10, logger)
	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published rows are not relayed twice")

	received := make(chan *consumer.Message, 1)
	cons, err := consumer.New(consumer.Config{
		Brokers: rp.Brokers,
		Group:   "test-" + uuid.NewString(),
		Topics:  []string{topic},
	}, consumer.HandlerFunc(func(_ context.Context, msg *consumer.Message) error {
		select {
		case received <- msg:
		default:
		}
		return nil
	}), logger)
	require.NoError(t, err)
	defer cons.Close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = cons.Run(runCtx) }()

	select {
	case msg := <-received:
		assert.Equal(t, "DOC-20260301-0001", string(msg.Key))
		event, err := auditpostgres.DecodePayload(msg.Value)
		require.NoError(t, err)
		assert.Equal(t, string(audit.EventDocumentDispatched), event.Action)
		assert.Equal(t, userID, event.UserID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for relayed audit event")
	}
}
