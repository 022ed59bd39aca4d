package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestTokenBucket_Allow(t *testing.T) {
	now := time.Now()
	b := newTokenBucket(1, 2, now)

	if !b.allow(now) || !b.allow(now) {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if b.allow(now) {
		t.Fatal("expected third request to be rejected")
	}
	if !b.allow(now.Add(1100 * time.Millisecond)) {
		t.Error("expected a token to refill after one second")
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	fixed := time.Now()
	store.now = func() time.Time { return fixed }
	mw := rateLimit(store)

	e := echo.New()
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	first := httptest.NewRecorder()
	if err := mw(handler)(e.NewContext(httptest.NewRequest(http.MethodPost, "/auth/login", nil), first)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second := httptest.NewRecorder()
	err := mw(handler)(e.NewContext(httptest.NewRequest(http.MethodPost, "/auth/login", nil), second))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})
	mw := rateLimit(store)
	e := echo.New()
	handler := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

	for _, ip := range []string{"10.0.0.1:1234", "10.0.0.2:1234"} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = ip
		if err := mw(handler)(e.NewContext(req, httptest.NewRecorder())); err != nil {
			t.Errorf("client %s: unexpected error: %v", ip, err)
		}
	}
}

func TestRateLimiterStore_EvictsIdleBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	start := time.Now()
	store.lastSweep = start

	store.getBucket("a", start)
	store.getBucket("b", start)
	if store.size() != 2 {
		t.Fatalf("expected 2 buckets, got %d", store.size())
	}

	store.getBucket("c", start.Add(2*time.Minute))
	if store.size() != 1 {
		t.Errorf("expected idle buckets to be evicted, got %d", store.size())
	}
}
