package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
)

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
}

func platformParam(r *http.Request) (domain.Platform, error) {
	return domain.ParsePlatform(chi.URLParam(r, "platform"))
}

// RequestBaseURL is the externally visible scheme://host of r, honouring
// X-Forwarded-Proto and X-Forwarded-Host from the fronting proxy. It returns
// "" when no host is known.
func RequestBaseURL(r *http.Request) string {
	host := firstForwarded(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}
	scheme := strings.ToLower(firstForwarded(r.Header.Get("X-Forwarded-Proto")))
	if scheme != "http" && scheme != "https" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + host
}

func firstForwarded(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.URL.Query().Get("response_mode"), "json")
}
