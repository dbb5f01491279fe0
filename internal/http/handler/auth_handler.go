package handler

import (
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/service"
)

const authMessageType = "social-auth"

var callbackPage = template.Must(template.New("callback").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<p>{{.Message}}</p>
<script>
(function () {
  var payload = {{.Payload}};
  if (window.opener) {
    window.opener.postMessage(payload, {{.Origin}});
    window.close();
  }
})();
</script>
</body>
</html>
`))

type callbackView struct {
	Title   string
	Message string
	Payload map[string]any
	Origin  string
}

type AuthHandler struct {
	svc            service.PublishingServiceInterface
	callbackOrigin string
	logger         *slog.Logger
}

// NewAuthHandler builds the OAuth endpoints. callbackOrigin is the frontend
// origin the popup reports back to; empty means the API's own origin.
func NewAuthHandler(svc service.PublishingServiceInterface, callbackOrigin string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{svc: svc, callbackOrigin: callbackOrigin, logger: logger}
}

func (h *AuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	platform, err := platformParam(r)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	start, err := h.svc.StartAuth(r.Context(), platform, middleware.UserIDFromContext(r.Context()), RequestBaseURL(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "auth.start", "platform", string(platform))
	if r.URL.Query().Get("response_mode") == "redirect" {
		http.Redirect(w, r, start.AuthURL, http.StatusFound)
		return
	}
	response.JSON(w, r, http.StatusOK, start)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	platform, err := platformParam(r)
	if err != nil {
		h.finish(w, r, "", nil, err)
		return
	}
	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		h.finish(w, r, platform, nil, providerDenied(denied, q.Get("error_description")))
		return
	}
	tok, err := h.svc.CompleteAuth(r.Context(), platform, q.Get("code"), q.Get("state"))
	h.finish(w, r, platform, tok, err)
}

func (h *AuthHandler) LegacyStart(w http.ResponseWriter, r *http.Request) {
	start, err := h.svc.StartLegacyAuth(r.Context(), middleware.UserIDFromContext(r.Context()), RequestBaseURL(r))
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	observability.Audit(r, "auth.legacy_start", "platform", string(domain.PlatformTwitter))
	if r.URL.Query().Get("response_mode") == "redirect" {
		http.Redirect(w, r, start.AuthURL, http.StatusFound)
		return
	}
	response.JSON(w, r, http.StatusOK, start)
}

func (h *AuthHandler) LegacyCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("denied") != "" {
		h.finish(w, r, domain.PlatformTwitter, nil, providerDenied("access_denied", "authorization was declined"))
		return
	}
	tok, err := h.svc.CompleteLegacyAuth(r.Context(), q.Get("oauth_token"), q.Get("oauth_verifier"))
	h.finish(w, r, domain.PlatformTwitter, tok, err)
}

func providerDenied(code, description string) error {
	if description == "" {
		description = code
	}
	return fmt.Errorf("%w: provider returned %s", domain.ErrTokenExchangeFailed, description)
}

// finish runs only after the token has been persisted, so an opener that
// reacts to the message can immediately read the connection.
func (h *AuthHandler) finish(w http.ResponseWriter, r *http.Request, platform domain.Platform, tok *domain.PlatformToken, err error) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "oauth callback failed",
			"platform", string(platform),
			"code", domain.ErrorCode(err),
			"error", err.Error(),
		)
		observability.Audit(r, "auth.callback_failed", "platform", string(platform), "code", domain.ErrorCode(err))
		if wantsJSON(r) {
			response.Fail(w, r, err)
			return
		}
		h.render(w, r, response.Status(err), callbackView{
			Title:   "Connection failed",
			Message: "Could not connect your account. You can close this window and try again.",
			Payload: map[string]any{
				"type":     authMessageType,
				"success":  false,
				"platform": string(platform),
				"error":    domain.ErrorCode(err),
			},
		})
		return
	}

	observability.Audit(r, "auth.callback_succeeded", "platform", string(platform), "user_id", tok.UserID)
	status := domain.ConnectionStatus{
		Platform:  platform,
		Connected: true,
		Username:  tok.Username,
		Legacy:    tok.HasLegacyCredentials(),
		ExpiresAt: tok.ExpiresAt,
	}
	if wantsJSON(r) {
		response.JSON(w, r, http.StatusOK, status)
		return
	}
	h.render(w, r, http.StatusOK, callbackView{
		Title:   platform.DisplayName() + " connected",
		Message: "Your " + platform.DisplayName() + " account is connected. You can close this window.",
		Payload: map[string]any{
			"type":     authMessageType,
			"success":  true,
			"platform": string(platform),
			"username": tok.Username,
		},
	})
}

func (h *AuthHandler) render(w http.ResponseWriter, r *http.Request, status int, view callbackView) {
	view.Origin = h.targetOrigin(r)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, view); err != nil {
		h.logger.ErrorContext(r.Context(), "render oauth callback page", "error", err.Error())
	}
}

func (h *AuthHandler) targetOrigin(r *http.Request) string {
	if h.callbackOrigin != "" {
		if u, err := url.Parse(h.callbackOrigin); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return RequestBaseURL(r)
}
