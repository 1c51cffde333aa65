package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"billtrack/internal/platform/config"
)

// Client is a connected go-redis client plus the key namespace shared by
// every replica. Only the orphan event queue lives in Redis today.
type Client struct {
	*redis.Client
	prefix string
}

// New returns nil, nil when no URL is configured; callers then use the
// in-memory queue.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{Client: rdb, prefix: cfg.KeyPrefix}, nil
}

func options(cfg config.Redis) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// Key namespaces name under the configured prefix.
func (c *Client) Key(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + ":" + name
}

// Health pings and reports an exhausted pool as unhealthy.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	if st := c.PoolStats(); st.Timeouts > 0 && st.IdleConns == 0 && st.TotalConns >= uint32(c.Options().PoolSize) {
		return fmt.Errorf("redis pool exhausted: %d conns, %d timeouts", st.TotalConns, st.Timeouts)
	}
	return nil
}
