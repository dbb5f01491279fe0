package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

const (
	dayWindow  = 24 * time.Hour
	dateLayout = "2006-01-02"
)

func usageKey(identifier, date string) string { return "usage:" + identifier + ":" + date }
func costKey(date string) string              { return "cost:" + date }
func stopKey(date string) string              { return "emergency_stop:" + date }

// QuotaLedger keeps per-identifier daily request counters and the global
// daily cost accumulator. Counters only move through INCR and INCRBYFLOAT.
type QuotaLedger struct {
	store    store.Store
	cfg      config.QuotaConfig
	observer observability.Observer
	logger   *slog.Logger
	now      func() time.Time
}

func NewQuotaLedger(kv store.Store, cfg config.QuotaConfig, observer observability.Observer, logger *slog.Logger) *QuotaLedger {
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaLedger{store: kv, cfg: cfg, observer: observer, logger: logger, now: time.Now}
}

// WithClock swaps the time source; days roll over at UTC midnight.
func (l *QuotaLedger) WithClock(now func() time.Time) *QuotaLedger {
	l.now = now
	return l
}

func (l *QuotaLedger) today() string { return l.now().UTC().Format(dateLayout) }

func (l *QuotaLedger) untilMidnight() time.Duration {
	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}

// failOpen records a KV failure and reports whether the caller may proceed.
func (l *QuotaLedger) failOpen(ctx context.Context, op, identifier string, err error) bool {
	l.observer.Observe(ctx, observability.Event{
		Kind:   observability.EventQuotaFailOpen,
		UserID: identifier,
		Err:    err,
		Fields: map[string]any{"operation": op, "fail_open": l.cfg.FailOpen},
	})
	observability.RecordQuotaDecision(ctx, quotaKind(identifier), "kv_error")
	return l.cfg.FailOpen
}

func quotaKind(identifier string) string {
	if i := strings.IndexByte(identifier, ':'); i > 0 {
		return identifier[:i]
	}
	if identifier == "" {
		return "global"
	}
	return "ip"
}

func (l *QuotaLedger) count(ctx context.Context, identifier, date string) (int64, error) {
	raw, ok, err := l.store.Get(ctx, usageKey(identifier, date))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse usage counter: %w", err)
	}
	return n, nil
}

// CheckDailyLimit reports whether identifier is still under limit today. A
// non-positive limit disables the check. KV failures follow the fail-open
// setting.
func (l *QuotaLedger) CheckDailyLimit(ctx context.Context, identifier string, limit int64) bool {
	if limit <= 0 {
		return true
	}
	n, err := l.count(ctx, identifier, l.today())
	if err != nil {
		return l.failOpen(ctx, "check_daily_limit", identifier, err)
	}
	return n < limit
}

// IncrementDailyUsage bumps today's counter and starts its 24h lifetime on
// the first increment.
func (l *QuotaLedger) IncrementDailyUsage(ctx context.Context, identifier string) (int64, error) {
	key := usageKey(identifier, l.today())
	n, err := l.store.Incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("increment usage: %w", err)
	}
	if n == 1 {
		if _, err := l.store.Expire(ctx, key, dayWindow); err != nil {
			return n, fmt.Errorf("expire usage: %w", err)
		}
	}
	return n, nil
}

// CheckCostLimit refuses work once the emergency stop is set or today's
// accumulated cost has reached the ceiling.
func (l *QuotaLedger) CheckCostLimit(ctx context.Context) error {
	date := l.today()
	stopped, err := l.store.Exists(ctx, stopKey(date))
	if err != nil {
		if l.failOpen(ctx, "check_emergency_stop", "", err) {
			return nil
		}
		return &domain.QuotaError{Reason: domain.ErrSystemOverloaded}
	}
	if stopped {
		observability.RecordQuotaDecision(ctx, "cost", "emergency_stop")
		return &domain.QuotaError{Reason: domain.ErrSystemOverloaded}
	}
	if l.cfg.DailyCostCeiling <= 0 {
		return nil
	}
	total, err := l.dailyCost(ctx, date)
	if err != nil {
		if l.failOpen(ctx, "check_cost", "", err) {
			return nil
		}
		return &domain.QuotaError{Reason: domain.ErrSystemOverloaded}
	}
	if total >= l.cfg.DailyCostCeiling {
		observability.RecordQuotaDecision(ctx, "cost", "ceiling")
		return &domain.QuotaError{Reason: domain.ErrSystemOverloaded}
	}
	return nil
}

func (l *QuotaLedger) dailyCost(ctx context.Context, date string) (float64, error) {
	raw, ok, err := l.store.Get(ctx, costKey(date))
	if err != nil || !ok {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cost accumulator: %w", err)
	}
	return v, nil
}

// RequestCost prices one generation call in USD.
func (l *QuotaLedger) RequestCost(usage domain.TokenUsage) float64 {
	return float64(usage.InputTokens)/1000*l.cfg.InputCostPer1K + float64(usage.OutputTokens)/1000*l.cfg.OutputCostPer1K
}

// TrackCost adds a request's cost to today's total. Crossing the ceiling
// raises the emergency stop for the rest of the day.
func (l *QuotaLedger) TrackCost(ctx context.Context, usage domain.TokenUsage) (domain.CostReport, error) {
	date := l.today()
	report := domain.CostReport{Date: date, RequestCost: l.RequestCost(usage), Ceiling: l.cfg.DailyCostCeiling}

	key := costKey(date)
	total, err := l.store.IncrByFloat(ctx, key, report.RequestCost)
	if err != nil {
		return report, fmt.Errorf("track cost: %w", err)
	}
	report.DailyTotal = total
	if ttl, err := l.store.TTL(ctx, key); err == nil && ttl < 0 {
		if _, err := l.store.Expire(ctx, key, dayWindow); err != nil {
			l.logger.WarnContext(ctx, "cost accumulator expiry not set", "date", date, "error", err.Error())
		}
	}
	observability.RecordCost(ctx, report.RequestCost)
	l.observer.Observe(ctx, observability.Event{
		Kind:   observability.EventCostTracked,
		Fields: map[string]any{"request_cost": report.RequestCost, "daily_total": total, "date": date},
	})

	if l.cfg.DailyCostCeiling > 0 && total >= l.cfg.DailyCostCeiling {
		if err := l.store.Set(ctx, stopKey(date), "1", dayWindow); err != nil {
			return report, fmt.Errorf("set emergency stop: %w", err)
		}
		report.EmergencyStop = true
		l.observer.Observe(ctx, observability.Event{
			Kind:   observability.EventEmergencyStop,
			Fields: map[string]any{"daily_total": total, "ceiling": l.cfg.DailyCostCeiling, "date": date},
		})
	}
	return report, nil
}

func (l *QuotaLedger) resetIn(ctx context.Context, key string) time.Duration {
	ttl, err := l.store.TTL(ctx, key)
	if err != nil || ttl < 0 {
		return l.untilMidnight()
	}
	return ttl
}

func decision(identifier string, used, limit int64, resetIn time.Duration) domain.QuotaDecision {
	d := domain.QuotaDecision{
		Identifier: identifier,
		Used:       used,
		Limit:      limit,
		ResetIn:    resetIn,
		ResetSecs:  int64(resetIn / time.Second),
	}
	if limit > 0 {
		d.Remaining = max(limit-used, 0)
		d.Allowed = used < limit
	} else {
		d.Allowed = true
	}
	return d
}

// Check reports today's standing for identifier without consuming anything.
func (l *QuotaLedger) Check(ctx context.Context, identifier string, limit int64) domain.QuotaDecision {
	date := l.today()
	n, err := l.count(ctx, identifier, date)
	if err != nil {
		allowed := l.failOpen(ctx, "check", identifier, err)
		d := decision(identifier, 0, limit, l.untilMidnight())
		d.Allowed = allowed
		d.FailedOpen = allowed
		return d
	}
	return decision(identifier, n, limit, l.resetIn(ctx, usageKey(identifier, date)))
}

// Consume checks the emergency stop and the daily limit, then counts one
// request. The returned decision reflects the state after the increment.
func (l *QuotaLedger) Consume(ctx context.Context, identifier string, limit int64) (domain.QuotaDecision, error) {
	kind := quotaKind(identifier)
	if err := l.CheckCostLimit(ctx); err != nil {
		d := decision(identifier, 0, limit, l.untilMidnight())
		d.Allowed = false
		return d, err
	}
	if limit <= 0 {
		observability.RecordQuotaDecision(ctx, kind, "unlimited")
		return decision(identifier, 0, limit, l.untilMidnight()), nil
	}

	date := l.today()
	key := usageKey(identifier, date)
	used, err := l.count(ctx, identifier, date)
	if err != nil {
		return l.consumeFailure(ctx, identifier, limit, err)
	}
	if used >= limit {
		return l.exceeded(ctx, identifier, used, limit, key)
	}

	n, err := l.IncrementDailyUsage(ctx, identifier)
	if err != nil {
		if n == 0 {
			return l.consumeFailure(ctx, identifier, limit, err)
		}
		l.logger.WarnContext(ctx, "usage counter expiry not set", "identifier", identifier, "error", err.Error())
	}
	if n > limit {
		// Lost a race with a concurrent consumer between read and INCR.
		return l.exceeded(ctx, identifier, n, limit, key)
	}
	observability.RecordQuotaDecision(ctx, kind, "allowed")
	d := decision(identifier, n, limit, l.resetIn(ctx, key))
	d.Allowed = true
	return d, nil
}

func (l *QuotaLedger) exceeded(ctx context.Context, identifier string, used, limit int64, key string) (domain.QuotaDecision, error) {
	d := decision(identifier, used, limit, l.resetIn(ctx, key))
	d.Allowed = false
	observability.RecordQuotaDecision(ctx, quotaKind(identifier), "exceeded")
	l.observer.Observe(ctx, observability.Event{
		Kind:   observability.EventQuotaExceeded,
		UserID: identifier,
		Fields: map[string]any{"used": used, "limit": limit},
	})
	return d, &domain.QuotaError{Reason: domain.ErrQuotaExceeded, Decision: d}
}

func (l *QuotaLedger) consumeFailure(ctx context.Context, identifier string, limit int64, err error) (domain.QuotaDecision, error) {
	d := decision(identifier, 0, limit, l.untilMidnight())
	if l.failOpen(ctx, "consume", identifier, err) {
		d.Allowed = true
		d.FailedOpen = true
		return d, nil
	}
	d.Allowed = false
	return d, &domain.QuotaError{Reason: domain.ErrSystemOverloaded, Decision: d}
}

// UsageReport lists every counter for date (today when empty) plus the
// day's cost and stop flag.
func (l *QuotaLedger) UsageReport(ctx context.Context, date string) (domain.UsageReport, error) {
	if date == "" {
		date = l.today()
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return domain.UsageReport{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
	}
	report := domain.UsageReport{Date: date, Identifiers: map[string]int64{}}

	keys, err := l.store.Keys(ctx, usageKey("*", date))
	if err != nil {
		return report, fmt.Errorf("list usage keys: %w", err)
	}
	suffix := ":" + date
	for _, key := range keys {
		identifier := strings.TrimSuffix(strings.TrimPrefix(key, "usage:"), suffix)
		n, err := l.count(ctx, identifier, date)
		if err != nil {
			return report, err
		}
		report.Identifiers[identifier] = n
		report.TotalRequests += n
	}
	if report.DailyCost, err = l.dailyCost(ctx, date); err != nil {
		return report, err
	}
	if report.EmergencyStop, err = l.store.Exists(ctx, stopKey(date)); err != nil {
		return report, fmt.Errorf("read emergency stop: %w", err)
	}
	return report, nil
}
