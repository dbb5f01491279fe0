package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/di"
	"github.com/sandeepkv93/social-publishing-core/internal/tools/common"
)

func main() {
	if err := common.LoadEnvFile(".env"); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := di.InitializeApp(ctx, cfg)
	if err != nil {
		slog.Error("initialize app", "error", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		a.Logger.Error("app stopped with error", "error", err)
		os.Exit(1)
	}
}
