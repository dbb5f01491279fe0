package social

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
	// MaxRetriesCeiling bounds the configured attempt count.
	MaxRetriesCeiling = 10
	// MaxBackoff is where the doubling wait saturates.
	MaxBackoff = 5 * time.Minute
)

// RetryExhaustedError is returned once a publish has failed for good. It
// unwraps to the last underlying error.
type RetryExhaustedError struct {
	Platform domain.Platform
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("%s: failed after %d %s: %v", e.Platform, e.Attempts, noun, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

// Retrier re-runs a Poster with exponential backoff: the wait after attempt
// n is BaseDelay * 2^(n-1). There is no jitter.
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
	Observer   observability.Observer
}

func NewRetrier(maxRetries int, baseDelay time.Duration, observer observability.Observer) *Retrier {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	maxRetries = min(maxRetries, MaxRetriesCeiling)
	if baseDelay < 0 {
		baseDelay = DefaultBaseDelay
	}
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	return &Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay, Sleep: SleepContext, Observer: observer}
}

// WithMaxRetries returns a copy limited to n attempts. A caller can only
// lower the configured bound: r itself is returned when n <= 0 or n is not
// below r.MaxRetries.
func (r *Retrier) WithMaxRetries(n int) *Retrier {
	if n <= 0 || n >= r.MaxRetries {
		return r
	}
	cp := *r
	cp.MaxRetries = n
	return &cp
}

// Backoff is the wait after the given failed attempt (1-based), capped at
// MaxBackoff.
func (r *Retrier) Backoff(attempt int) time.Duration {
	d := r.BaseDelay
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		if d > MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return min(d, MaxBackoff)
}

func (r *Retrier) PostWithRetry(ctx context.Context, p Poster, content string, opts domain.PostOptions) (*domain.PostResult, error) {
	maxAttempts := r.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxRetries
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	observer := r.Observer
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	platform := p.Platform()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		observer.Observe(ctx, Event(observability.EventPostAttempt, platform, attempt, nil))
		start := time.Now()
		res, err := p.Post(ctx, content, opts)
		if err == nil && res != nil {
			observability.RecordPostAttempt(ctx, platform.String(), res.APIVersion, "success", time.Since(start))
			res.Platform = platform
			res.Success = true
			res.Attempts = attempt
			if attempt > 1 {
				res.Message = fmt.Sprintf("%s (succeeded on attempt %d)", res.Message, attempt)
			}
			observer.Observe(ctx, Event(observability.EventPostSucceeded, platform, attempt, nil))
			return res, nil
		}
		if err == nil {
			err = errors.New("poster returned no result")
		}
		lastErr = err
		observability.RecordPostAttempt(ctx, platform.String(), apiVersionOf(err), "failure", time.Since(start))

		if !domain.IsRetryable(err) {
			observer.Observe(ctx, Event(observability.EventPostFailed, platform, attempt, err))
			return nil, &RetryExhaustedError{Platform: platform, Attempts: attempt, Last: err}
		}
		if attempt == maxAttempts {
			break
		}
		wait := r.Backoff(attempt)
		e := Event(observability.EventPostRetryScheduled, platform, attempt, err)
		e.Fields = map[string]any{"backoff_ms": wait.Milliseconds()}
		observer.Observe(ctx, e)
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			lastErr = errors.Join(err, sleepErr)
			observer.Observe(ctx, Event(observability.EventPostFailed, platform, attempt, lastErr))
			return nil, &RetryExhaustedError{Platform: platform, Attempts: attempt, Last: lastErr}
		}
	}
	observer.Observe(ctx, Event(observability.EventPostFailed, platform, maxAttempts, lastErr))
	return nil, &RetryExhaustedError{Platform: platform, Attempts: maxAttempts, Last: lastErr}
}

// Event builds a post lifecycle event.
func Event(kind observability.EventKind, platform domain.Platform, attempt int, err error) observability.Event {
	return observability.Event{Kind: kind, Platform: platform.String(), Attempt: attempt, Err: err}
}

func apiVersionOf(err error) string {
	var apiErr *domain.PlatformAPIError
	if errors.As(err, &apiErr) && apiErr.APIVersion != "" {
		return apiErr.APIVersion
	}
	return "unknown"
}
