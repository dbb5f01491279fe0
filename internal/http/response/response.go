package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta      `json:"meta"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, status, envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

// Multi is JSON for batch results where success is mixed or absent.
func Multi(w http.ResponseWriter, r *http.Request, status int, success bool, data any) {
	write(w, status, envelope{Success: success, Data: data, Meta: buildMeta(r)})
}

func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	write(w, status, envelope{Success: false, Error: &apiError{Code: code, Message: message, Details: details}, Meta: buildMeta(r)})
}

// Fail writes err using the status and code its domain kind maps to.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	var details any
	var qe *domain.QuotaError
	if errors.As(err, &qe) {
		details = qe.Decision
		if qe.Decision.ResetSecs > 0 {
			w.Header().Set("Retry-After", strconv.FormatInt(qe.Decision.ResetSecs, 10))
		}
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		details = map[string]any{"platform": ve.Platform, "problems": ve.Problems}
	}
	Error(w, r, status, domain.ErrorCode(err), message, details)
}

func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingParameters),
		errors.Is(err, domain.ErrUnsupportedPlatform),
		errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotConnected):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrSystemOverloaded),
		errors.Is(err, domain.ErrConfiguration):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTokenExchangeFailed),
		errors.Is(err, domain.ErrProfileFetchFailed),
		errors.Is(err, domain.ErrPlatformAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}
