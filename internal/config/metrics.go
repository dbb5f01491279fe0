package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// Validation problems are named by their environment key; the prefix picks
// the section reported on failed loads.
var validationSections = []struct{ prefix, section string }{
	{"JWT_", "jwt"},
	{"AUTH_", "auth"},
	{"QUOTA", "quota"},
	{"RETRY_", "retry"},
	{"THREADS_", "threads"},
	{"TWITTER_", "twitter"},
	{"OTEL_", "otel"},
	{"HTTP_ADDR", "http"},
	{"PUBLIC_BASE_URL", "http"},
}

// recordLoad counts config.validation.events. The meter is resolved on first
// use so it binds to whichever provider observability installed.
func recordLoad(ctx context.Context, env string, cfg *Config, err error) {
	loadMetricsOnce.Do(func() {
		counter, cerr := otel.Meter("social-publishing-core/config").Int64Counter("config.validation.events")
		if cerr == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("profile", normalizeConfigProfile(env)),
		attribute.String("error_class", classifyConfigLoadError(err)),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("outcome", "failure"))
	} else {
		attrs = append(attrs,
			attribute.String("outcome", "success"),
			attribute.String("platforms", enabledPlatforms(cfg)),
			attribute.String("store", storeBackend(cfg)),
		)
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func normalizeConfigProfile(profile string) string {
	v := strings.TrimSpace(strings.ToLower(profile))
	if v == "" {
		return "unknown"
	}
	return v
}

// classifyConfigLoadError reports "validation.<section>" for the first
// rejected setting, otherwise the load stage that failed.
func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.TrimSpace(err.Error())
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation." + validationSection(strings.TrimSpace(strings.TrimPrefix(msg, "validate config:")))
	case strings.HasPrefix(msg, "read config file"):
		return "file"
	case strings.HasPrefix(msg, "parse config"):
		return "parse"
	default:
		return "load"
	}
}

func validationSection(problem string) string {
	for _, s := range validationSections {
		if strings.HasPrefix(problem, s.prefix) {
			return s.section
		}
	}
	return "other"
}

// enabledPlatforms lists the credentialed integrations, e.g. "twitter+threads".
func enabledPlatforms(cfg *Config) string {
	if cfg == nil {
		return "none"
	}
	var out []string
	switch {
	case cfg.TwitterOAuth2Enabled() && cfg.TwitterOAuth1Enabled():
		out = append(out, "twitter")
	case cfg.TwitterOAuth2Enabled():
		out = append(out, "twitter_oauth2")
	case cfg.TwitterOAuth1Enabled():
		out = append(out, "twitter_oauth1")
	}
	if cfg.ThreadsEnabled() {
		out = append(out, "threads")
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, "+")
}

func storeBackend(cfg *Config) string {
	if cfg == nil || strings.TrimSpace(cfg.Redis.Addr) == "" {
		return "memory"
	}
	return "redis"
}
