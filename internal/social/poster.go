package social

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

// Poster publishes content to one platform on behalf of one connected user.
// A failed publish is always reported as an error, never as a result with
// Success=false.
type Poster interface {
	Platform() domain.Platform
	ValidateContent(content string, opts domain.PostOptions) domain.ValidationReport
	Post(ctx context.Context, content string, opts domain.PostOptions) (*domain.PostResult, error)
}

// PosterFactory builds a Poster bound to a stored credential set.
type PosterFactory interface {
	Platform() domain.Platform
	NewPoster(token *domain.PlatformToken) (Poster, error)
}

// PosterResolver yields the Poster to use for a platform. Resolution failures
// (not connected, not configured) count as that platform's outcome.
type PosterResolver interface {
	Resolve(ctx context.Context, platform domain.Platform) (Poster, error)
}

type PosterResolverFunc func(ctx context.Context, platform domain.Platform) (Poster, error)

func (f PosterResolverFunc) Resolve(ctx context.Context, platform domain.Platform) (Poster, error) {
	return f(ctx, platform)
}

// NewHTTPClient returns the outbound client used for platform APIs, traced
// through otelhttp.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
