package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, RateLimitPolicy) (Decision, error) {
	return Decision{}, errors.New("backend down")
}

func newRedisStore(t *testing.T) (*miniredis.Miniredis, store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, store.NewRedisStore(client, "")
}

func doRequest(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestStoreLimiterFixedWindow(t *testing.T) {
	mr, kv := newRedisStore(t)
	h := NewDistributedRateLimiter(NewStoreLimiter(kv), 2, time.Minute, FailClosed, "api", nil).Middleware()(noContent)

	for i := 0; i < 2; i++ {
		if rr := doRequest(h, "10.0.0.1:1234"); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i+1, rr.Code)
		}
	}
	rr := doRequest(h, "10.0.0.1:1234")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" || rr.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("unexpected limit headers %+v", rr.Header())
	}
	if got := mr.TTL("ratelimit:api:10.0.0.1"); got != time.Minute {
		t.Fatalf("expected window ttl, got %s", got)
	}

	if rr := doRequest(h, "10.0.0.2:1234"); rr.Code != http.StatusNoContent {
		t.Fatalf("other client must have its own window, got %d", rr.Code)
	}

	mr.FastForward(time.Minute)
	if rr := doRequest(h, "10.0.0.1:1234"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected window to reopen, got %d", rr.Code)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	open := NewDistributedRateLimiter(failingLimiter{}, 1, time.Minute, FailOpen, "api", nil).Middleware()(noContent)
	if rr := doRequest(open, "10.0.0.1:1"); rr.Code != http.StatusNoContent {
		t.Fatalf("fail open expected 204, got %d", rr.Code)
	}

	closed := NewDistributedRateLimiter(failingLimiter{}, 1, time.Minute, FailClosed, "auth", nil).Middleware()(noContent)
	if rr := doRequest(closed, "10.0.0.1:1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed expected 429, got %d", rr.Code)
	}
}

func TestRateLimiterBypass(t *testing.T) {
	h := NewRateLimiter(1, time.Minute).WithBypassEvaluator(HealthProbeBypass).Middleware()(noContent)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("health probe %d must bypass, got %d", i+1, rr.Code)
		}
	}
}

func TestSubjectOrIPKeyFunc(t *testing.T) {
	jwtMgr := newTestJWTManager()
	keyFn := SubjectOrIPKeyFunc(jwtMgr)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	if got := keyFn(req); got != "192.0.2.10" {
		t.Fatalf("expected ip key, got %q", got)
	}

	token, err := jwtMgr.SignAccessToken("u7", "", nil, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if got := keyFn(req); got != "sub:u7" {
		t.Fatalf("expected subject key, got %q", got)
	}
	if rateLimitKeyType("sub:u7") != "subject" || rateLimitKeyType("192.0.2.10") != "ip" {
		t.Fatal("unexpected key type classification")
	}
}

func TestClientIPFallsBackToRawRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-an-ip"
	if got := ClientIP(req); got != "not-an-ip" {
		t.Fatalf("expected raw remote addr, got %q", got)
	}
	req.RemoteAddr = "[2001:db8::1]:443"
	if got := ClientIP(req); got != "2001:db8::1" {
		t.Fatalf("expected ipv6 host, got %q", got)
	}
}
