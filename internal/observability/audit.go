package observability

import (
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
)

// Audit logs a security-relevant step of a connect, disconnect or quota
// flow. Entries carry the trace id of the request span when there is one,
// so a callback failure can be joined with the provider calls behind it.
func Audit(r *http.Request, event string, attrs ...any) {
	ctx := r.Context()
	requestID := chimiddleware.GetReqID(ctx)
	if requestID == "" {
		requestID = r.Header.Get("X-Request-Id")
	}
	fields := make([]any, 0, len(attrs)+10)
	fields = append(fields, "event", event, "route", r.Method+" "+r.URL.Path, "request_id", requestID)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, "trace_id", sc.TraceID().String())
	}
	fields = append(fields, attrs...)
	RecordAudit(ctx, event)
	slog.InfoContext(ctx, "audit", fields...)
}
