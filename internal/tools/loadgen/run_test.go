package loadgen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClassifyStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		302: "3xx",
		404: "4xx",
		500: "5xx",
		100: "other",
	}
	for status, want := range cases {
		if got := classifyStatusClass(status); got != want {
			t.Fatalf("classifyStatusClass(%d)=%q want %q", status, got, want)
		}
	}
}

func TestNormalizeProfile(t *testing.T) {
	if got := normalizeProfile(""); got != "mixed" {
		t.Fatalf("normalizeProfile empty=%q want mixed", got)
	}
	if got := normalizeProfile("  AUTH  "); got != "auth" {
		t.Fatalf("normalizeProfile auth=%q want auth", got)
	}
}

func TestRunRecordsStatusClassesAgainstServer(t *testing.T) {
	var reports, authed atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health/live":
			w.WriteHeader(http.StatusOK)
		case "/health/ready":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/v1/quota/report":
			reports.Add(1)
			if r.Header.Get("Authorization") == "Bearer tok" {
				authed.Add(1)
			}
			w.WriteHeader(http.StatusOK)
		default:
			if r.Header.Get("Authorization") != "" {
				t.Errorf("unexpected auth header on %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	res, err := Run(context.Background(), Config{
		BaseURL:     srv.URL,
		Profile:     "health",
		Duration:    300 * time.Millisecond,
		RPS:         50,
		Concurrency: 2,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.TotalRequests == 0 {
		t.Fatal("expected requests to be sent")
	}
	if res.StatusClasses["2xx"]+res.StatusClasses["5xx"] != res.TotalRequests {
		t.Fatalf("unexpected classes %v total=%d", res.StatusClasses, res.TotalRequests)
	}
	if res.Failures != res.StatusClasses["5xx"] {
		t.Fatalf("expected failures to count 5xx, got %d vs %v", res.Failures, res.StatusClasses)
	}

	if _, err := Run(context.Background(), Config{BaseURL: srv.URL, Profile: "quota", Duration: 200 * time.Millisecond, RPS: 50, Seed: 1, BearerToken: "tok"}); err != nil {
		t.Fatalf("run quota: %v", err)
	}
	if authed.Load() != reports.Load() {
		t.Fatalf("expected bearer token on every report call, got %d of %d", authed.Load(), reports.Load())
	}
}

func TestRunRejectsUnknownProfile(t *testing.T) {
	if _, err := Run(context.Background(), Config{BaseURL: "http://localhost", Profile: "checkout"}); err == nil {
		t.Fatal("expected unknown profile error")
	}
}
