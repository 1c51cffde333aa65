package orphan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"billtrack/internal/reconcile/models"
)

const defaultKey = "billtrack:orphan-events"

// Redis keeps pending events in a sorted set scored by due time in unix
// milliseconds, so every replica shares one queue.
type Redis struct {
	client redis.UniversalClient
	key    string
}

func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = defaultKey
	}
	return &Redis{client: client, key: key}
}

func (q *Redis) Schedule(ctx context.Context, ev models.PendingEvent, due time.Time) error {
	member, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode pending event: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(due.UnixMilli()), Member: member}).Err(); err != nil {
		return fmt.Errorf("schedule pending event: %w", err)
	}
	return nil
}

// Due claims events whose due time has passed. A member is claimed by the
// replica whose ZREM removes it, so concurrent workers never share one.
// Members that fail to decode are removed and reported in the error; the
// events claimed alongside them are still returned.
func (q *Redis) Due(ctx context.Context, now time.Time, limit int) ([]models.PendingEvent, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.UnixMilli(), 10)}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	members, err := q.client.ZRangeByScore(ctx, q.key, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("list due events: %w", err)
	}

	var (
		out  = make([]models.PendingEvent, 0, len(members))
		errs []error
	)
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			// unclaimed members stay queued for the next pass
			errs = append(errs, fmt.Errorf("claim due event: %w", err))
			break
		}
		if removed != 1 {
			continue
		}
		var ev models.PendingEvent
		if err := json.Unmarshal([]byte(m), &ev); err != nil {
			errs = append(errs, fmt.Errorf("decode pending event: %w", err))
			continue
		}
		out = append(out, ev)
	}
	return out, errors.Join(errs...)
}
