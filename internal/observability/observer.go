package observability

import (
	"context"
	"log/slog"
	"sync"
)

type EventKind string

const (
	EventAuthStarted          EventKind = "auth.started"
	EventAuthCompleted        EventKind = "auth.completed"
	EventAuthFailed           EventKind = "auth.failed"
	EventSessionCleanupFailed EventKind = "auth.session_cleanup_failed"
	EventTokenRefreshed       EventKind = "auth.token_refreshed"
	EventPostAttempt          EventKind = "post.attempt"
	EventPostRetryScheduled   EventKind = "post.retry_scheduled"
	EventPostSucceeded        EventKind = "post.succeeded"
	EventPostFailed           EventKind = "post.failed"
	EventAPIFallback          EventKind = "post.api_fallback"
	EventDispatchCompleted    EventKind = "dispatch.completed"
	EventQuotaExceeded        EventKind = "quota.exceeded"
	EventQuotaFailOpen        EventKind = "quota.fail_open"
	EventCostTracked          EventKind = "quota.cost_tracked"
	EventEmergencyStop        EventKind = "quota.emergency_stop"
)

// Event is a structured occurrence emitted by the core. Fields carries
// event-specific attributes; it must never contain secrets or tokens.
type Event struct {
	Kind     EventKind
	Platform string
	UserID   string
	Attempt  int
	Err      error
	Fields   map[string]any
}

type Observer interface {
	Observe(ctx context.Context, e Event)
}

type NoopObserver struct{}

func (NoopObserver) Observe(context.Context, Event) {}

// LogObserver writes every event to slog. Failures log at warn.
type LogObserver struct {
	Logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) Observe(ctx context.Context, e Event) {
	attrs := []any{"event", string(e.Kind)}
	if e.Platform != "" {
		attrs = append(attrs, "platform", e.Platform)
	}
	if e.UserID != "" {
		attrs = append(attrs, "user_id", e.UserID)
	}
	if e.Attempt > 0 {
		attrs = append(attrs, "attempt", e.Attempt)
	}
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	if e.Err != nil {
		attrs = append(attrs, "error", e.Err.Error())
		o.Logger.WarnContext(ctx, "core event", attrs...)
		return
	}
	o.Logger.InfoContext(ctx, "core event", attrs...)
}

// RecordingObserver keeps events in memory. Safe for concurrent use.
type RecordingObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *RecordingObserver) Observe(_ context.Context, e Event) {
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
}

func (o *RecordingObserver) Events() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Event, len(o.events))
	copy(out, o.events)
	return out
}

func (o *RecordingObserver) Count(kind EventKind) int {
	n := 0
	for _, e := range o.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// MultiObserver fans an event out to several observers.
type MultiObserver []Observer

func (m MultiObserver) Observe(ctx context.Context, e Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}
