package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/health"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAssignsDependenciesAndTimeouts(t *testing.T) {
	cfg := &config.Config{ShutdownTimeout: 10 * time.Second}
	logger := discardLogger()
	server := &http.Server{Addr: ":8080", ReadHeaderTimeout: time.Second}
	readiness := health.NewProbeRunner(100 * time.Millisecond)

	a := New(cfg, logger, server, nil, readiness, nil)
	if a.Config != cfg || a.Logger != logger || a.Server != server || a.Readiness != readiness {
		t.Fatal("expected app dependencies to be assigned")
	}
	if a.ShutdownTimeout != cfg.ShutdownTimeout {
		t.Fatalf("expected shutdown timeout copied from config, got %s", a.ShutdownTimeout)
	}

	a = New(&config.Config{}, logger, server, nil, nil, nil)
	if a.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %s", a.ShutdownTimeout)
	}
}

func TestServeStopsOnContextCancelAndClosesStore(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	server := &http.Server{Handler: mux, ReadHeaderTimeout: time.Second}

	closed := false
	a := New(&config.Config{ShutdownTimeout: time.Second}, discardLogger(), server, nil, nil, func() error {
		closed = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	if !closed {
		t.Fatal("expected store closer to run")
	}
}

func TestShutdownJoinsCloserError(t *testing.T) {
	a := New(&config.Config{}, discardLogger(), &http.Server{}, nil, nil, func() error {
		return errors.New("redis: client is closed")
	})
	if err := a.Shutdown(); err == nil {
		t.Fatal("expected closer error to surface")
	}
}
