package twitter

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

type FactoryConfig struct {
	APIBase        string
	ConsumerKey    string
	ConsumerSecret string
	// App-level OAuth1 user token, used for the v1.1 fallback when the user
	// has not linked legacy credentials.
	AccessToken       string
	AccessTokenSecret string
}

type Factory struct {
	cfg      FactoryConfig
	client   *http.Client
	observer observability.Observer
	logger   *slog.Logger
}

func NewFactory(cfg FactoryConfig, client *http.Client, observer observability.Observer, logger *slog.Logger) *Factory {
	return &Factory{cfg: cfg, client: client, observer: observer, logger: logger}
}

func (f *Factory) Platform() domain.Platform { return domain.PlatformTwitter }

func (f *Factory) NewPoster(token *domain.PlatformToken) (social.Poster, error) {
	if token == nil {
		return nil, fmt.Errorf("twitter: %w", domain.ErrNotConnected)
	}
	var creds *security.OAuth1Credentials
	switch {
	case f.cfg.ConsumerKey == "" || f.cfg.ConsumerSecret == "":
		// v1.1 fallback unavailable without app credentials.
	case token.HasLegacyCredentials():
		creds = &security.OAuth1Credentials{
			ConsumerKey:    f.cfg.ConsumerKey,
			ConsumerSecret: f.cfg.ConsumerSecret,
			Token:          token.LegacyToken,
			TokenSecret:    token.LegacyTokenSecret,
		}
	case f.cfg.AccessToken != "" && f.cfg.AccessTokenSecret != "":
		creds = &security.OAuth1Credentials{
			ConsumerKey:    f.cfg.ConsumerKey,
			ConsumerSecret: f.cfg.ConsumerSecret,
			Token:          f.cfg.AccessToken,
			TokenSecret:    f.cfg.AccessTokenSecret,
		}
	}
	if token.AccessToken == "" && creds == nil {
		return nil, fmt.Errorf("twitter: %w", domain.ErrNotConnected)
	}
	return NewPoster(PosterOptions{
		Client:   f.client,
		APIBase:  f.cfg.APIBase,
		Bearer:   token.AccessToken,
		OAuth1:   creds,
		Username: token.Username,
		Observer: f.observer,
		Logger:   f.logger,
	}), nil
}
