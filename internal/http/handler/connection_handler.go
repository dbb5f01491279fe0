package handler

import (
	"net/http"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/service"
)

type ConnectionHandler struct {
	svc service.PublishingServiceInterface
}

func NewConnectionHandler(svc service.PublishingServiceInterface) *ConnectionHandler {
	return &ConnectionHandler{svc: svc}
}

// List reports every platform; a storage error on one becomes a
// disconnected entry rather than failing the whole listing.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())
	out := make([]domain.ConnectionStatus, 0, len(domain.AllPlatforms))
	for _, p := range domain.AllPlatforms {
		status, err := h.svc.CheckConnection(r.Context(), p, userID)
		if err != nil {
			status = domain.ConnectionStatus{Platform: p}
		}
		out = append(out, status)
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	platform, err := platformParam(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	status, err := h.svc.CheckConnection(r.Context(), platform, middleware.UserIDFromContext(r.Context()))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	platform, err := platformParam(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	removed, err := h.svc.Disconnect(r.Context(), platform, middleware.UserIDFromContext(r.Context()))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "connection.deleted", "platform", string(platform), "removed", removed)
	response.JSON(w, r, http.StatusOK, map[string]any{"platform": platform, "disconnected": removed})
}
