package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/social-publishing-core/internal/config"

	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Runtime owns the OTel providers for one process. Shutdown flushes traces
// before logs.
type Runtime struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
	LoggerProvider *sdklog.LoggerProvider
}

// InitRuntime wires metrics and tracing. lp is the log provider created
// earlier for the logger, if any; the runtime takes ownership of it.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	return &Runtime{MeterProvider: mp, TracerProvider: tp, LoggerProvider: lp}, nil
}

// Observer returns the event sink for core components: every event is
// logged and also attached to the span active in its context, so a post
// span shows its attempts, fallbacks and quota refusals inline.
func (r *Runtime) Observer(logger *slog.Logger) Observer {
	return MultiObserver{NewLogObserver(logger), SpanObserver{}}
}

// SpanObserver records events on the current span. Without a recording
// span it does nothing.
type SpanObserver struct{}

func (SpanObserver) Observe(ctx context.Context, e Event) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(e.Fields)+2)
	if e.Platform != "" {
		attrs = append(attrs, attribute.String("social.platform", e.Platform))
	}
	if e.Attempt > 0 {
		attrs = append(attrs, attribute.Int("social.attempt", e.Attempt))
	}
	for k, v := range e.Fields {
		attrs = append(attrs, attribute.String(k, fmt.Sprint(v)))
	}
	if e.Err != nil {
		attrs = append(attrs, attribute.String("error.message", e.Err.Error()))
	}
	span.AddEvent(string(e.Kind), trace.WithAttributes(attrs...))
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.TracerProvider != nil {
		if err := r.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if r.MeterProvider != nil {
		if err := r.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if r.LoggerProvider != nil {
		if err := r.LoggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown logger provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
