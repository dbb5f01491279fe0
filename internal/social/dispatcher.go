package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
)

type DispatchRequest struct {
	Content         string
	Platforms       []domain.Platform
	PlatformContent map[domain.Platform]string
	Options         domain.PostOptions
	PlatformOptions map[domain.Platform]*domain.PostOptions
	// MaxRetries lowers the retrier's attempt bound when positive. It never
	// raises it.
	MaxRetries int
}

// ContentFor returns the platform override or the shared content.
func (r DispatchRequest) ContentFor(p domain.Platform) string {
	if c, ok := r.PlatformContent[p]; ok && c != "" {
		return c
	}
	return r.Content
}

func (r DispatchRequest) OptionsFor(p domain.Platform) domain.PostOptions {
	return r.Options.Merge(r.PlatformOptions[p])
}

type Dispatcher struct {
	retrier  *Retrier
	observer observability.Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewDispatcher(retrier *Retrier, observer observability.Observer, logger *slog.Logger) *Dispatcher {
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{retrier: retrier, observer: observer, logger: logger, tracer: observability.Tracer()}
}

// PostToAll publishes to every requested platform concurrently. Platforms
// never cancel or wait on each other; the call itself never fails and the
// aggregate describes each outcome.
func (d *Dispatcher) PostToAll(ctx context.Context, req DispatchRequest, resolver PosterResolver) domain.AggregateResult {
	platforms := dedupePlatforms(req.Platforms)
	agg := domain.AggregateResult{
		DispatchID: uuid.NewString(),
		Results:    make([]domain.PlatformOutcome, len(platforms)),
	}
	retrier := d.retrier.WithMaxRetries(req.MaxRetries)

	// A plain Group: one platform's failure must not cancel the others.
	var g errgroup.Group
	for i, p := range platforms {
		g.Go(func() error {
			agg.Results[i] = d.postOne(ctx, agg.DispatchID, retrier, p, req, resolver)
			return nil
		})
	}
	_ = g.Wait()

	agg.Summarize()
	observability.RecordDispatch(ctx, string(agg.Outcome), len(platforms))
	d.observer.Observe(ctx, observability.Event{
		Kind: observability.EventDispatchCompleted,
		Fields: map[string]any{
			"dispatch_id": agg.DispatchID,
			"outcome":     string(agg.Outcome),
			"succeeded":   agg.Succeeded,
			"failed":      agg.Failed,
		},
	})
	return agg
}

func (d *Dispatcher) postOne(ctx context.Context, dispatchID string, retrier *Retrier, p domain.Platform, req DispatchRequest, resolver PosterResolver) (out domain.PlatformOutcome) {
	out.Platform = p
	ctx, span := d.tracer.Start(ctx, "social.post", trace.WithAttributes(
		attribute.String("platform", p.String()),
		attribute.String("dispatch_id", dispatchID),
	))
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("%s: poster panicked: %v", p, rec)
			d.logger.ErrorContext(ctx, "poster panic", "platform", p.String(), "panic", fmt.Sprint(rec))
			span.SetStatus(codes.Error, err.Error())
			out = failure(p, err)
		}
	}()

	poster, err := resolver.Resolve(ctx, p)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		d.observer.Observe(ctx, Event(observability.EventPostFailed, p, 0, err))
		return failure(p, err)
	}
	res, err := retrier.PostWithRetry(ctx, poster, req.ContentFor(p), req.OptionsFor(p))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return failure(p, err)
	}
	span.SetAttributes(attribute.Int("attempts", res.Attempts), attribute.String("post_id", res.PostID))
	return domain.PlatformOutcome{Platform: p, Success: true, Result: res, Attempts: res.Attempts}
}

func failure(p domain.Platform, err error) domain.PlatformOutcome {
	attempts := 0
	var exhausted *RetryExhaustedError
	if errors.As(err, &exhausted) {
		attempts = exhausted.Attempts
	}
	return domain.PlatformOutcome{
		Platform: p,
		Success:  false,
		Error:    err.Error(),
		Code:     domain.ErrorCode(err),
		Attempts: attempts,
	}
}

func dedupePlatforms(in []domain.Platform) []domain.Platform {
	seen := make(map[domain.Platform]struct{}, len(in))
	out := make([]domain.Platform, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
