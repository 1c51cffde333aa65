package consumer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var delivered, fallback int

	r := NewRouter(logger, nil)
	r.Register("billing.delivery-events", HandlerFunc(func(context.Context, *Message) error {
		delivered++
		return nil
	}))

	require.NoError(t, r.Handle(context.Background(), &Message{Topic: "billing.delivery-events"}))
	require.NoError(t, r.Handle(context.Background(), &Message{Topic: "unknown"}), "unknown topics are skipped")
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"billing.delivery-events"}, r.Topics())

	withFallback := NewRouter(logger, HandlerFunc(func(context.Context, *Message) error {
		fallback++
		return nil
	}))
	require.NoError(t, withFallback.Handle(context.Background(), &Message{Topic: "other"}))
	assert.Equal(t, 1, fallback)
}

func TestRouterTopicsSortedAndUnique(t *testing.T) {
	noop := HandlerFunc(func(context.Context, *Message) error { return nil })
	r := NewRouter(slog.New(slog.DiscardHandler), nil)
	r.Register("billing.payment-events", noop)
	r.Register("billing.delivery-events", noop)

	assert.Equal(t, []string{"billing.delivery-events", "billing.payment-events"}, r.Topics())
	assert.Panics(t, func() { r.Register("billing.payment-events", noop) })
}
