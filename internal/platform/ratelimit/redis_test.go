package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// unreachableClient points at a port nothing listens on.
func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisWindow_Key(t *testing.T) {
	w := NewRedisWindow(nil, "otp", 5, 10*time.Minute)
	if got := w.key("user@example.com"); got != "otp:user@example.com" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestRedisWindow_PropagatesErrors(t *testing.T) {
	client := unreachableClient()
	defer client.Close()
	w := NewRedisWindow(client, "otp", 5, 10*time.Minute)
	ctx := context.Background()

	if _, err := w.Allow(ctx, "a"); err == nil {
		t.Error("expected Allow to fail without a server")
	}
	if _, err := w.RecordFailure(ctx, "a"); err == nil {
		t.Error("expected RecordFailure to fail without a server")
	}
	if err := w.Reset(ctx, "a"); err == nil {
		t.Error("expected Reset to fail without a server")
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	if _, err := Connect(context.Background(), "http://not-redis"); err == nil {
		t.Error("expected error for non-redis URL")
	}
}
