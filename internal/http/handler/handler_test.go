package handler

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

func TestRequestBaseURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://api.internal:8080/x", nil)
	if got := RequestBaseURL(req); got != "http://api.internal:8080" {
		t.Fatalf("unexpected base %q", got)
	}

	req.TLS = &tls.ConnectionState{}
	if got := RequestBaseURL(req); got != "https://api.internal:8080" {
		t.Fatalf("expected tls to imply https, got %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "https, http")
	req.Header.Set("X-Forwarded-Host", "social.example.com, proxy.internal")
	if got := RequestBaseURL(req); got != "https://social.example.com" {
		t.Fatalf("expected first forwarded values, got %q", got)
	}

	req.Header.Set("X-Forwarded-Proto", "gopher")
	req.TLS = nil
	if got := RequestBaseURL(req); got != "http://social.example.com" {
		t.Fatalf("expected unknown proto ignored, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = ""
	if got := RequestBaseURL(req); got != "" {
		t.Fatalf("expected empty base without host, got %q", got)
	}
}

func TestParsePlatforms(t *testing.T) {
	cases := []struct {
		raw  string
		want []domain.Platform
		err  error
	}{
		{`"all"`, domain.AllPlatforms, nil},
		{`"ALL"`, domain.AllPlatforms, nil},
		{`"threads"`, []domain.Platform{domain.PlatformThreads}, nil},
		{`["x","threads"]`, []domain.Platform{domain.PlatformTwitter, domain.PlatformThreads}, nil},
		{`[]`, []domain.Platform{}, nil},
		{``, nil, domain.ErrMissingParameters},
		{`null`, nil, domain.ErrMissingParameters},
		{`42`, nil, domain.ErrMissingParameters},
		{`["twitter","mastodon"]`, nil, domain.ErrUnsupportedPlatform},
	}
	for _, tc := range cases {
		got, err := parsePlatforms([]byte(tc.raw))
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("%s: expected %v, got %v", tc.raw, tc.err, err)
			}
			continue
		}
		if err != nil || len(got) != len(tc.want) {
			t.Fatalf("%s: got %v err=%v", tc.raw, got, err)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: got %v want %v", tc.raw, got, tc.want)
			}
		}
	}
}

func TestOutcomeStatus(t *testing.T) {
	if outcomeStatus(domain.OutcomeCompleteSuccess) != http.StatusOK ||
		outcomeStatus(domain.OutcomePartialSuccess) != http.StatusMultiStatus ||
		outcomeStatus(domain.OutcomeCompleteFailure) != http.StatusBadGateway {
		t.Fatal("unexpected outcome status mapping")
	}
}
