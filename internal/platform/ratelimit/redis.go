package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// incrWindow increments a counter and starts its expiry on first use, so the
// window is fixed from the first failure rather than sliding.
var incrWindow = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// RedisWindow counts failures per key in a fixed time window shared by every
// server instance.
type RedisWindow struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

func NewRedisWindow(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
	}
}

func (w *RedisWindow) key(k string) string {
	return w.prefix + ":" + k
}

// Allow reports whether key is still below the failure limit.
func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	n, err := w.client.Get(ctx, w.key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("read attempt counter: %w", err)
	}
	return n < w.limit, nil
}

// RecordFailure increments the failure counter and returns the new count.
func (w *RedisWindow) RecordFailure(ctx context.Context, key string) (int64, error) {
	n, err := incrWindow.Run(ctx, w.client, []string{w.key(key)}, w.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("increment attempt counter: %w", err)
	}
	return n, nil
}

func (w *RedisWindow) Reset(ctx context.Context, key string) error {
	if err := w.client.Del(ctx, w.key(key)).Err(); err != nil {
		return fmt.Errorf("reset attempt counter: %w", err)
	}
	return nil
}
