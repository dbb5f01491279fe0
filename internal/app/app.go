package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/health"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
)

const defaultShutdownTimeout = 15 * time.Second

// Closer releases a backing resource such as the Redis client on shutdown.
type Closer func() error

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	ShutdownTimeout time.Duration

	closeStore Closer
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, closeStore Closer) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		ShutdownTimeout: timeout,
		closeStore:      closeStore,
	}
}

// Run serves until ctx is cancelled or the listener fails, then drains in
// flight requests and flushes telemetry.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", ln.Addr().String(), "env", a.Config.AppEnv)
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
			a.Logger.Error("http server failed", "error", err.Error())
		}
	}
	if err := a.Shutdown(); err != nil {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	if len(errs) == 0 {
		a.Logger.Info("shutdown complete")
	}
	return errors.Join(errs...)
}
