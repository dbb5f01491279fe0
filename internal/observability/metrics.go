package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type AppMetrics struct {
	authFlowCounter      metric.Int64Counter
	postAttemptCounter   metric.Int64Counter
	dispatchCounter      metric.Int64Counter
	postDuration         metric.Float64Histogram
	quotaDecisionCounter metric.Int64Counter
	costCounter          metric.Float64Counter
	rateLimitCounter     metric.Int64Counter
	rateLimitRetryAfter  metric.Float64Histogram
	tokenValidationCount metric.Int64Counter
	tokenRefreshCounter  metric.Int64Counter
	auditCounter         metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	var mp *sdkmetric.MeterProvider
	if !cfg.OTel.MetricsEnabled {
		mp = sdkmetric.NewMeterProvider()
		logger.Info("otel metrics disabled")
	} else {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTel.ExporterEndpoint)}
		if cfg.OTel.ExporterInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		res, err := newResource(ctx, cfg)
		if err != nil {
			return nil, err
		}
		reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTel.MetricsExportInterval))
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		logger.Info("otel metrics initialized", "endpoint", cfg.OTel.ExporterEndpoint)
	}
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter("social-publishing-core"))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	if m.authFlowCounter, err = meter.Int64Counter("oauth.flow.events"); err != nil {
		return nil, err
	}
	if m.postAttemptCounter, err = meter.Int64Counter("post.attempts"); err != nil {
		return nil, err
	}
	if m.dispatchCounter, err = meter.Int64Counter("post.dispatches"); err != nil {
		return nil, err
	}
	if m.postDuration, err = meter.Float64Histogram("post.duration", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.quotaDecisionCounter, err = meter.Int64Counter("quota.decisions"); err != nil {
		return nil, err
	}
	if m.costCounter, err = meter.Float64Counter("quota.cost.usd"); err != nil {
		return nil, err
	}
	if m.rateLimitCounter, err = meter.Int64Counter("http.rate_limit.decisions"); err != nil {
		return nil, err
	}
	if m.rateLimitRetryAfter, err = meter.Float64Histogram("http.rate_limit.retry_after", metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.tokenValidationCount, err = meter.Int64Counter("auth.access_token.validations"); err != nil {
		return nil, err
	}
	if m.tokenRefreshCounter, err = meter.Int64Counter("oauth.token.refreshes"); err != nil {
		return nil, err
	}
	if m.auditCounter, err = meter.Int64Counter("audit.events"); err != nil {
		return nil, err
	}
	return &m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthFlow(ctx context.Context, platform, stage, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.authFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
}

func RecordPostAttempt(ctx context.Context, platform, apiVersion, status string, took time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("api_version", apiVersion),
		attribute.String("status", status),
	)
	m.postAttemptCounter.Add(ctx, 1, attrs)
	m.postDuration.Record(ctx, took.Seconds(), attrs)
}

func RecordDispatch(ctx context.Context, outcome string, platforms int) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.dispatchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("platforms", platforms),
	))
}

func RecordQuotaDecision(ctx context.Context, kind, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.quotaDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func RecordCost(ctx context.Context, usd float64) {
	m := currentMetrics()
	if m == nil || usd <= 0 {
		return
	}
	m.costCounter.Add(ctx, usd)
}

func RecordRateLimitDecision(ctx context.Context, scope, outcome, mode, keyType string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("outcome", outcome),
		attribute.String("mode", mode),
		attribute.String("key_type", keyType),
	))
}

func RecordRateLimitRetryAfter(ctx context.Context, scope, reason string, d time.Duration) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitRetryAfter.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("reason", reason),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenValidationCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordTokenRefresh(ctx context.Context, platform, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenRefreshCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("platform", platform),
		attribute.String("status", status),
	))
}

func RecordAudit(ctx context.Context, event string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.auditCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}
