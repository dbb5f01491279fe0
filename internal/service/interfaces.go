package service

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
	"github.com/sandeepkv93/social-publishing-core/internal/social/twitter"
)

// OAuthProvider is one platform's OAuth2 authorization-code flow.
type OAuthProvider interface {
	Platform() domain.Platform
	AuthCodeURL(state, challenge, redirectURI string) string
	Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error)
	Refresh(ctx context.Context, token *domain.PlatformToken) (*oauth2.Token, error)
}

// LegacyAuthProvider is the Twitter OAuth1.0a three-legged flow.
type LegacyAuthProvider interface {
	RequestToken(ctx context.Context, callbackURL string) (token, secret string, err error)
	AuthorizeURL(requestToken string) string
	AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*twitter.LegacyCredentials, error)
}

type PublishingServiceInterface interface {
	StartAuth(ctx context.Context, platform domain.Platform, userID, redirectBase string) (*domain.AuthStart, error)
	CompleteAuth(ctx context.Context, platform domain.Platform, code, state string) (*domain.PlatformToken, error)
	StartLegacyAuth(ctx context.Context, userID, redirectBase string) (*domain.AuthStart, error)
	CompleteLegacyAuth(ctx context.Context, oauthToken, verifier string) (*domain.PlatformToken, error)
	CheckConnection(ctx context.Context, platform domain.Platform, userID string) (domain.ConnectionStatus, error)
	Disconnect(ctx context.Context, platform domain.Platform, userID string) (bool, error)
	Post(ctx context.Context, userID string, req social.DispatchRequest) (domain.AggregateResult, error)
	CheckQuota(ctx context.Context, identifier string) domain.QuotaDecision
	ConsumeGeneration(ctx context.Context, identifier string) (domain.QuotaDecision, error)
	RecordGenerationCost(ctx context.Context, usage domain.TokenUsage) (domain.CostReport, error)
	UsageReport(ctx context.Context, date string) (domain.UsageReport, error)
}
