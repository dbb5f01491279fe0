package threads

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

type FactoryConfig struct {
	GraphBase   string
	SettleDelay time.Duration
	PollWait    time.Duration
	MaxPolls    int
}

type Factory struct {
	cfg    FactoryConfig
	client *http.Client
	logger *slog.Logger
}

func NewFactory(cfg FactoryConfig, client *http.Client, logger *slog.Logger) *Factory {
	return &Factory{cfg: cfg, client: client, logger: logger}
}

func (f *Factory) Platform() domain.Platform { return domain.PlatformThreads }

// NewPoster needs the Threads user id captured at connect time; every
// publishing call is scoped to it.
func (f *Factory) NewPoster(token *domain.PlatformToken) (social.Poster, error) {
	if token == nil || token.AccessToken == "" || token.PlatformUserID == "" {
		return nil, fmt.Errorf("threads: %w", domain.ErrNotConnected)
	}
	return NewPoster(PosterOptions{
		Client:      f.client,
		GraphBase:   f.cfg.GraphBase,
		AccessToken: token.AccessToken,
		UserID:      token.PlatformUserID,
		Username:    token.Username,
		SettleDelay: f.cfg.SettleDelay,
		PollWait:    f.cfg.PollWait,
		MaxPolls:    f.cfg.MaxPolls,
		Logger:      f.logger,
	}), nil
}
