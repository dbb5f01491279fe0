package handler

import (
	"net/http"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/service"
)

type QuotaHandler struct {
	svc service.PublishingServiceInterface
}

func NewQuotaHandler(svc service.PublishingServiceInterface) *QuotaHandler {
	return &QuotaHandler{svc: svc}
}

// quotaIdentifier is user:{id} for authenticated callers and the client IP
// otherwise.
func quotaIdentifier(r *http.Request) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return middleware.ClientIP(r)
}

func (h *QuotaHandler) Check(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.svc.CheckQuota(r.Context(), quotaIdentifier(r)))
}

func (h *QuotaHandler) Consume(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.ConsumeGeneration(r.Context(), quotaIdentifier(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, d)
}

func (h *QuotaHandler) RecordCost(w http.ResponseWriter, r *http.Request) {
	var usage domain.TokenUsage
	if err := decodeJSON(r, &usage); err != nil {
		badRequest(w, r, err)
		return
	}
	report, err := h.svc.RecordGenerationCost(r.Context(), usage)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	if report.EmergencyStop {
		observability.Audit(r, "quota.emergency_stop", "daily_total", report.DailyTotal, "ceiling", report.Ceiling)
	}
	response.JSON(w, r, http.StatusOK, report)
}

func (h *QuotaHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.UsageReport(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, report)
}
