package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

// BypassEvaluator lets trusted traffic skip a limiter. The reason is logged.
type BypassEvaluator func(r *http.Request) (bool, string)

// StoreLimiter is a fixed-window counter kept in the shared KV store so every
// replica sees the same budget. The window opens on the first hit.
type StoreLimiter struct {
	kv  store.Store
	now func() time.Time
}

func NewStoreLimiter(kv store.Store) *StoreLimiter {
	return &StoreLimiter{kv: kv, now: time.Now}
}

func (l *StoreLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	k := "ratelimit:" + key
	n, err := l.kv.Incr(ctx, k)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit incr: %w", err)
	}
	ttl := policy.Window
	if n == 1 {
		if _, err := l.kv.Expire(ctx, k, policy.Window); err != nil {
			return Decision{}, fmt.Errorf("rate limit expire: %w", err)
		}
	} else if left, err := l.kv.TTL(ctx, k); err == nil {
		if left > 0 {
			ttl = left
		} else if left == store.NoExpiry {
			// A previous EXPIRE was lost; reopen the window.
			_, _ = l.kv.Expire(ctx, k, policy.Window)
		}
	}

	resetAt := l.now().Add(ttl)
	remaining := max(policy.Limit-int(n), 0)
	if int(n) > policy.Limit {
		return Decision{Allowed: false, RetryAfter: ttl, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

type RateLimiter struct {
	limiter         Limiter
	policy          RateLimitPolicy
	mode            FailureMode
	scope           string
	keyFunc         func(r *http.Request) string
	bypassEvaluator BypassEvaluator
}

// NewRateLimiter keeps its counters in process memory.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewDistributedRateLimiter(NewStoreLimiter(store.NewInMemoryStore()), limit, window, FailClosed, "local", nil)
}

func NewRateLimiterWithKey(limit int, window time.Duration, keyFunc func(r *http.Request) string) *RateLimiter {
	return NewDistributedRateLimiter(NewStoreLimiter(store.NewInMemoryStore()), limit, window, FailClosed, "local", keyFunc)
}

func NewDistributedRateLimiter(
	limiter Limiter,
	limit int,
	window time.Duration,
	mode FailureMode,
	scope string,
	keyFunc func(r *http.Request) string,
) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  normalizePolicy(RateLimitPolicy{Limit: limit, Window: window}),
		mode:    mode,
		scope:   scope,
		keyFunc: keyFunc,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyType := "ip"
			if rl.bypassEvaluator != nil {
				if bypass, reason := rl.bypassEvaluator(r); bypass {
					if reason == "" {
						reason = "unspecified"
					}
					observability.RecordRateLimitDecision(r.Context(), rl.scope, "bypass", string(rl.mode), keyType)
					slog.Debug("rate limiter bypass applied", "scope", rl.scope, "reason", reason, "path", r.URL.Path)
					next.ServeHTTP(w, r)
					return
				}
			}
			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}
			keyType = rateLimitKeyType(key)
			decision, err := rl.limiter.Allow(r.Context(), rl.scope+":"+key, rl.policy)
			if err != nil {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "backend_error", string(rl.mode), keyType)
				if rl.mode == FailOpen {
					slog.Warn("rate limiter backend unavailable, allowing request",
						"scope", rl.scope,
						"mode", string(rl.mode),
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				writeRateLimitHeaders(w.Header(), rl.policy.Limit, 0, time.Now().Add(rl.policy.Window))
				w.Header().Set("Retry-After", retryAfterHeader(rl.policy.Window))
				observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, "backend", rl.policy.Window)
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			writeRateLimitHeaders(w.Header(), rl.policy.Limit, decision.Remaining, decision.ResetAt)
			if !decision.Allowed {
				observability.RecordRateLimitDecision(r.Context(), rl.scope, "deny", string(rl.mode), keyType)
				w.Header().Set("Retry-After", retryAfterHeader(decision.RetryAfter))
				observability.RecordRateLimitRetryAfter(r.Context(), rl.scope, "window", decision.RetryAfter)
				response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			observability.RecordRateLimitDecision(r.Context(), rl.scope, "allow", string(rl.mode), keyType)
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) WithBypassEvaluator(bypassEvaluator BypassEvaluator) *RateLimiter {
	rl.bypassEvaluator = bypassEvaluator
	return rl
}

// SubjectOrIPKeyFunc keys authenticated callers by token subject so one user
// behind a shared NAT does not starve the others.
func SubjectOrIPKeyFunc(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr == nil {
			return clientIPKey(r)
		}
		subject := requestSubject(r, jwtMgr)
		if subject == "" {
			return clientIPKey(r)
		}
		return "sub:" + subject
	}
}

// HealthProbeBypass skips limiting for liveness and readiness probes.
func HealthProbeBypass(r *http.Request) (bool, string) {
	if strings.HasPrefix(r.URL.Path, "/health/") {
		return true, "health_probe"
	}
	return false, ""
}

func requestSubject(r *http.Request, jwtMgr *security.JWTManager) string {
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		return claims.UserID()
	}
	raw, _ := accessToken(r)
	if raw == "" {
		return ""
	}
	claims, err := jwtMgr.ParseAccessToken(raw)
	if err != nil {
		return ""
	}
	return claims.UserID()
}

// parseRequestIP reads RemoteAddr, which chi's RealIP has already rewritten
// from X-Forwarded-For / X-Real-IP when present.
func parseRequestIP(r *http.Request) net.IP {
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

// ClientIP is the caller address used for anonymous quota identifiers.
func ClientIP(r *http.Request) string {
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	ip := parseRequestIP(r)
	if ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func normalizePolicy(policy RateLimitPolicy) RateLimitPolicy {
	if policy.Limit <= 0 {
		policy.Limit = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return policy
}

func rateLimitKeyType(key string) string {
	if strings.HasPrefix(key, "sub:") {
		return "subject"
	}
	return "ip"
}
