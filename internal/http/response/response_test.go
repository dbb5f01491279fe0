package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrMissingParameters, http.StatusBadRequest},
		{domain.ErrSessionNotFound, http.StatusBadRequest},
		{&domain.ValidationError{Platform: domain.PlatformThreads, Problems: []string{"x"}}, http.StatusUnprocessableEntity},
		{domain.ErrNotConnected, http.StatusNotFound},
		{&domain.QuotaError{Reason: domain.ErrQuotaExceeded}, http.StatusTooManyRequests},
		{&domain.QuotaError{Reason: domain.ErrSystemOverloaded}, http.StatusServiceUnavailable},
		{fmt.Errorf("threads oauth: %w", domain.ErrConfiguration), http.StatusServiceUnavailable},
		{&domain.PlatformAPIError{Platform: domain.PlatformTwitter, StatusCode: 500}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Fatalf("Status(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}

func TestFailHidesInternalErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("redis: connection pool exhausted"))

	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusInternalServerError || env.Error.Code != "INTERNAL_ERROR" || env.Error.Message != "internal error" {
		t.Fatalf("unexpected envelope %+v", env.Error)
	}
	if env.Meta.RequestID != "req-unknown" {
		t.Fatalf("unexpected request id %q", env.Meta.RequestID)
	}
}

func TestFailCarriesValidationProblems(t *testing.T) {
	rr := httptest.NewRecorder()
	Fail(rr, httptest.NewRequest(http.MethodPost, "/", nil), &domain.ValidationError{Platform: domain.PlatformTwitter, Problems: []string{"too long"}})

	var env struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Platform string   `json:"platform"`
				Problems []string `json:"problems"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "VALIDATION_FAILED" || env.Error.Details.Platform != "twitter" || len(env.Error.Details.Problems) != 1 {
		t.Fatalf("unexpected envelope %+v", env.Error)
	}
}
