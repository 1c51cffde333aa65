package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "billtrack/pkg/domain"
	audit "billtrack/pkg/platform/audit"
	"billtrack/pkg/platform/audit/store/memory"
)

func TestWorkerDrainsUntilClosed(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	userID := id.NewUserID()
	for range 3 {
		inbox <- audit.Event{UserID: userID, Action: string(audit.EventBillCreated)}
	}
	close(inbox)

	err := NewWorker(store, inbox).Run(context.Background())
	require.NoError(t, err)

	events, err := store.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestWorkerStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := NewWorker(memory.NewInMemoryStore(), make(chan audit.Event)).Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type flakyStore struct {
	failures int
	appended []audit.Event
}

func (s *flakyStore) Append(_ context.Context, e audit.Event) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	s.appended = append(s.appended, e)
	return nil
}

func TestWorkerRetriesOnceThenDrops(t *testing.T) {
	store := &flakyStore{failures: 3}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Action: string(audit.EventBillCreated), Subject: "first"}
	inbox <- audit.Event{Action: string(audit.EventBillCreated), Subject: "second"}
	close(inbox)

	w := NewWorker(store, inbox, WithRetryBackoff(0))
	require.NoError(t, w.Run(context.Background()))

	// first fails twice and is dropped; second fails once then lands
	assert.Equal(t, int64(1), w.Dropped())
	require.Len(t, store.appended, 1)
	assert.Equal(t, "second", store.appended[0].Subject)
}
