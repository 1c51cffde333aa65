//go:build integration

package orphan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtrack/internal/reconcile/models"
	"billtrack/pkg/testutil/containers"
)

func TestRedisQueue(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	ctx := context.Background()
	q := NewRedis(rc.Client.Client, rc.Client.Key("orphans"))
	now := time.Now()

	require.NoError(t, q.Schedule(ctx, pending("soon"), now.Add(-time.Second)))
	require.NoError(t, q.Schedule(ctx, pending("later"), now.Add(time.Hour)))

	due, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "soon", due[0].Event.ExternalReference)
	assert.Equal(t, models.KindDelivered, due[0].Event.Kind)

	again, err := q.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRedisQueueSkipsUndecodableMember(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	ctx := context.Background()
	key := rc.Client.Key("orphans")
	q := NewRedis(rc.Client.Client, key)
	now := time.Now()

	require.NoError(t, q.Schedule(ctx, pending("first"), now.Add(-2*time.Second)))
	require.NoError(t, rc.Client.ZAdd(ctx, key, redis.Z{Score: float64(now.Add(-time.Second).UnixMilli()), Member: "{not json"}).Err())
	require.NoError(t, q.Schedule(ctx, pending("second"), now.Add(-time.Second/2)))

	due, err := q.Due(ctx, now, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode pending event")
	require.Len(t, due, 2)
	assert.Equal(t, "first", due[0].Event.ExternalReference)
	assert.Equal(t, "second", due[1].Event.ExternalReference)

	left, err := rc.Client.ZCard(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, left, "the bad member is not retried forever")
}

func TestRedisQueueConcurrentClaim(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	rc.Reset(t)
	ctx := context.Background()
	q := NewRedis(rc.Client.Client, rc.Client.Key("orphans"))
	now := time.Now()

	for i := range 20 {
		ev := pending("ref")
		ev.Retries = i
		require.NoError(t, q.Schedule(ctx, ev, now.Add(-time.Second)))
	}

	var (
		mu      sync.Mutex
		claimed = map[int]int{}
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			due, err := q.Due(ctx, now, 0)
			assert.NoError(t, err)
			mu.Lock()
			for _, ev := range due {
				claimed[ev.Retries]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 20)
	for retries, n := range claimed {
		assert.Equal(t, 1, n, "event %d claimed more than once", retries)
	}
}
