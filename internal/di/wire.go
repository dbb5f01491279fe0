//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/social-publishing-core/internal/app"
	"github.com/sandeepkv93/social-publishing-core/internal/config"
)

func InitializeApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	wire.Build(ConfigSet, ServiceSet, HTTPSet)
	return nil, nil
}

func InitializeCore(ctx context.Context, cfg *config.Config) (*Core, error) {
	wire.Build(ConfigSet, ServiceSet, provideCore)
	return nil, nil
}
