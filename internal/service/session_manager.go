package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

const (
	DefaultSessionTTL  = 1800 * time.Second
	DefaultRefreshSkew = 5 * time.Minute

	pkceSessionPrefix   = "oauth_pkce:"
	oauth1SessionPrefix = "oauth1_request:"
	maxStateAttempts    = 5
)

func CallbackPath(platform domain.Platform) string {
	return "/api/v1/auth/" + string(platform) + "/callback"
}

const LegacyCallbackPath = "/api/v1/auth/twitter/legacy/callback"

type SessionManagerConfig struct {
	SessionTTL  time.Duration
	RefreshSkew time.Duration
	// FallbackBaseURL is used only when the request carries no usable host.
	FallbackBaseURL string
}

// OAuthSessionManager owns the authorization round trip: it mints PKCE
// sessions, completes code exchanges and keeps stored tokens fresh.
type OAuthSessionManager struct {
	store     store.Store
	tokens    *PlatformTokenStore
	providers map[domain.Platform]OAuthProvider
	legacy    LegacyAuthProvider
	cfg       SessionManagerConfig
	observer  observability.Observer
	logger    *slog.Logger

	newState func() (string, error)
	newPKCE  func() security.PKCEPair
	now      func() time.Time
	refresh  singleflight.Group
}

func NewOAuthSessionManager(
	kv store.Store,
	tokens *PlatformTokenStore,
	providers []OAuthProvider,
	legacy LegacyAuthProvider,
	cfg SessionManagerConfig,
	observer observability.Observer,
	logger *slog.Logger,
) *OAuthSessionManager {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = DefaultRefreshSkew
	}
	if observer == nil {
		observer = observability.NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	byPlatform := make(map[domain.Platform]OAuthProvider, len(providers))
	for _, p := range providers {
		if p != nil {
			byPlatform[p.Platform()] = p
		}
	}
	return &OAuthSessionManager{
		store:     kv,
		tokens:    tokens,
		providers: byPlatform,
		legacy:    legacy,
		cfg:       cfg,
		observer:  observer,
		logger:    logger,
		newState:  security.NewState,
		newPKCE:   security.NewPKCEPair,
		now:       time.Now,
	}
}

func (m *OAuthSessionManager) provider(platform domain.Platform) (OAuthProvider, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%q: %w", platform, domain.ErrUnsupportedPlatform)
	}
	p, ok := m.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%s oauth: %w", platform, domain.ErrConfiguration)
	}
	return p, nil
}

func (m *OAuthSessionManager) Configured(platform domain.Platform) bool {
	_, ok := m.providers[platform]
	return ok
}

func (m *OAuthSessionManager) baseURL(redirectBase string) (string, error) {
	base := strings.TrimRight(redirectBase, "/")
	if base == "" {
		base = strings.TrimRight(m.cfg.FallbackBaseURL, "/")
	}
	if base == "" {
		return "", fmt.Errorf("no redirect base url: %w", domain.ErrConfiguration)
	}
	return base, nil
}

func (m *OAuthSessionManager) authFailed(ctx context.Context, platform domain.Platform, userID, stage string, err error) error {
	observability.RecordAuthFlow(ctx, string(platform), stage, classifyAuthError(err))
	m.observer.Observe(ctx, observability.Event{
		Kind:     observability.EventAuthFailed,
		Platform: string(platform),
		UserID:   userID,
		Err:      err,
		Fields:   map[string]any{"stage": stage},
	})
	return err
}

func classifyAuthError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrTokenExchangeFailed):
		return "token_exchange"
	case errors.Is(err, domain.ErrProfileFetchFailed):
		return "profile_fetch"
	default:
		return "internal"
	}
}

// freshState draws states until one is not held by a live session.
func (m *OAuthSessionManager) freshState(ctx context.Context, prefix string) (string, error) {
	for range maxStateAttempts {
		state, err := m.newState()
		if err != nil {
			return "", fmt.Errorf("generate state: %w", err)
		}
		taken, err := m.store.Exists(ctx, prefix+state)
		if err != nil {
			return "", fmt.Errorf("check state: %w", err)
		}
		if !taken {
			return state, nil
		}
	}
	return "", errors.New("could not allocate an unused oauth state")
}

func (m *OAuthSessionManager) saveSession(ctx context.Context, key string, session *domain.AuthSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode auth session: %w", err)
	}
	if err := m.store.Set(ctx, key, string(raw), m.cfg.SessionTTL); err != nil {
		return fmt.Errorf("save auth session: %w", err)
	}
	return nil
}

func (m *OAuthSessionManager) loadSession(ctx context.Context, key string) (*domain.AuthSession, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load auth session: %w", err)
	}
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	var session domain.AuthSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decode auth session: %w", err)
	}
	return &session, nil
}

// dropSession removes a consumed session. Failure leaves it to expire.
func (m *OAuthSessionManager) dropSession(ctx context.Context, key string, platform domain.Platform, userID string) {
	if _, err := m.store.Del(ctx, key); err != nil {
		m.observer.Observe(ctx, observability.Event{
			Kind:     observability.EventSessionCleanupFailed,
			Platform: string(platform),
			UserID:   userID,
			Err:      err,
		})
	}
}

// StartAuth creates a PKCE session for userID and returns the provider's
// authorization URL. The redirect URI is derived from redirectBase.
func (m *OAuthSessionManager) StartAuth(ctx context.Context, platform domain.Platform, userID, redirectBase string) (*domain.AuthStart, error) {
	provider, err := m.provider(platform)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", domain.ErrMissingParameters)
	}
	base, err := m.baseURL(redirectBase)
	if err != nil {
		return nil, err
	}
	state, err := m.freshState(ctx, pkceSessionPrefix)
	if err != nil {
		return nil, m.authFailed(ctx, platform, userID, "start", err)
	}
	pair := m.newPKCE()
	redirectURI := base + CallbackPath(platform)
	session := &domain.AuthSession{
		State:         state,
		Platform:      platform,
		UserID:        userID,
		CodeVerifier:  pair.Verifier,
		CodeChallenge: pair.Challenge,
		RedirectURI:   redirectURI,
		CreatedAt:     m.now().UnixMilli(),
	}
	if err := m.saveSession(ctx, pkceSessionPrefix+state, session); err != nil {
		return nil, m.authFailed(ctx, platform, userID, "start", err)
	}

	observability.RecordAuthFlow(ctx, string(platform), "start", "success")
	m.observer.Observe(ctx, observability.Event{Kind: observability.EventAuthStarted, Platform: string(platform), UserID: userID})
	return &domain.AuthStart{
		AuthURL:     provider.AuthCodeURL(state, pair.Challenge, redirectURI),
		State:       state,
		Platform:    platform,
		RedirectURI: redirectURI,
	}, nil
}

// CompleteAuth finishes the code exchange for state. The token is persisted
// before this returns. The session is dropped only after that save succeeds;
// a failed callback leaves it in place until its TTL lapses.
func (m *OAuthSessionManager) CompleteAuth(ctx context.Context, platform domain.Platform, code, state string) (*domain.PlatformToken, error) {
	if code == "" || state == "" {
		return nil, fmt.Errorf("code and state: %w", domain.ErrMissingParameters)
	}
	provider, err := m.provider(platform)
	if err != nil {
		return nil, err
	}
	key := pkceSessionPrefix + state
	session, err := m.loadSession(ctx, key)
	if err != nil {
		return nil, m.authFailed(ctx, platform, "", "callback", err)
	}
	if session.Platform != platform {
		return nil, m.authFailed(ctx, platform, session.UserID, "callback", domain.ErrSessionNotFound)
	}

	tok, err := provider.Exchange(ctx, code, session.CodeVerifier, session.RedirectURI)
	if err != nil {
		return nil, m.authFailed(ctx, platform, session.UserID, "exchange", fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err))
	}
	profile, err := provider.FetchProfile(ctx, tok.AccessToken)
	if err != nil {
		return nil, m.authFailed(ctx, platform, session.UserID, "profile", fmt.Errorf("%w: %w", domain.ErrProfileFetchFailed, err))
	}

	record, err := m.existingOrNew(ctx, platform, session.UserID)
	if err != nil {
		return nil, m.authFailed(ctx, platform, session.UserID, "persist", err)
	}
	applyOAuth2Token(record, tok)
	record.PlatformUserID = profile.ID
	record.Username = profile.Username
	if err := m.tokens.Save(ctx, record); err != nil {
		return nil, m.authFailed(ctx, platform, session.UserID, "persist", err)
	}
	m.dropSession(ctx, key, platform, session.UserID)

	observability.RecordAuthFlow(ctx, string(platform), "callback", "success")
	m.observer.Observe(ctx, observability.Event{
		Kind:     observability.EventAuthCompleted,
		Platform: string(platform),
		UserID:   session.UserID,
		Fields:   map[string]any{"username": profile.Username},
	})
	return record, nil
}

func (m *OAuthSessionManager) existingOrNew(ctx context.Context, platform domain.Platform, userID string) (*domain.PlatformToken, error) {
	current, err := m.tokens.Get(ctx, platform, userID)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, domain.ErrNotConnected):
		return &domain.PlatformToken{Platform: platform, UserID: userID}, nil
	default:
		return nil, err
	}
}

func applyOAuth2Token(record *domain.PlatformToken, tok *oauth2.Token) {
	record.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		record.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		record.TokenType = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		record.Scopes = strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == ',' })
	}
	record.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		record.ExpiresAt = &expiry
	}
}

// RefreshToken renews the stored access token. Concurrent refreshes of the
// same record share one provider call.
func (m *OAuthSessionManager) RefreshToken(ctx context.Context, platform domain.Platform, userID string) (*domain.PlatformToken, error) {
	provider, err := m.provider(platform)
	if err != nil {
		return nil, err
	}
	v, err, _ := m.refresh.Do(tokenKey(platform, userID), func() (any, error) {
		// Waiters share this call; it outlives the first caller's cancellation.
		ctx := context.WithoutCancel(ctx)
		current, err := m.tokens.Get(ctx, platform, userID)
		if err != nil {
			return nil, err
		}
		tok, err := provider.Refresh(ctx, current)
		if err != nil {
			observability.RecordTokenRefresh(ctx, string(platform), "failure")
			return nil, fmt.Errorf("refresh %s token: %w", platform, err)
		}
		applyOAuth2Token(current, tok)
		if err := m.tokens.Save(ctx, current); err != nil {
			return nil, err
		}
		observability.RecordTokenRefresh(ctx, string(platform), "success")
		m.observer.Observe(ctx, observability.Event{Kind: observability.EventTokenRefreshed, Platform: string(platform), UserID: userID})
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.PlatformToken), nil
}

// Fresh returns the stored token, refreshing it first when it is about to
// lapse. A failed refresh is tolerated while the old token is still valid.
func (m *OAuthSessionManager) Fresh(ctx context.Context, platform domain.Platform, userID string) (*domain.PlatformToken, bool, error) {
	current, err := m.tokens.Get(ctx, platform, userID)
	if err != nil {
		return nil, false, err
	}
	now := m.now()
	if !current.ExpiresWithin(now, m.cfg.RefreshSkew) || !m.Configured(platform) {
		return current, false, nil
	}
	refreshed, err := m.RefreshToken(ctx, platform, userID)
	if err == nil {
		return refreshed, true, nil
	}
	if current.ExpiresWithin(now, 0) && !current.HasLegacyCredentials() {
		return nil, false, fmt.Errorf("%s token expired: %w: %w", platform, domain.ErrNotConnected, err)
	}
	m.logger.WarnContext(ctx, "token refresh failed, keeping current token",
		"platform", string(platform), "user_id", userID, "error", err.Error())
	return current, false, nil
}

func (m *OAuthSessionManager) CheckConnection(ctx context.Context, platform domain.Platform, userID string) (domain.ConnectionStatus, error) {
	status := domain.ConnectionStatus{Platform: platform}
	if !platform.Valid() {
		return status, fmt.Errorf("%q: %w", platform, domain.ErrUnsupportedPlatform)
	}
	token, refreshed, err := m.Fresh(ctx, platform, userID)
	if errors.Is(err, domain.ErrNotConnected) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Connected = true
	status.Username = token.Username
	status.Legacy = token.HasLegacyCredentials()
	status.ExpiresAt = token.ExpiresAt
	status.Refreshed = refreshed
	return status, nil
}

func (m *OAuthSessionManager) Disconnect(ctx context.Context, platform domain.Platform, userID string) (bool, error) {
	if !platform.Valid() {
		return false, fmt.Errorf("%q: %w", platform, domain.ErrUnsupportedPlatform)
	}
	return m.tokens.Delete(ctx, platform, userID)
}

// StartLegacyAuth begins the OAuth1.0a link that lets Twitter's v1.1
// fallback post as the user.
func (m *OAuthSessionManager) StartLegacyAuth(ctx context.Context, userID, redirectBase string) (*domain.AuthStart, error) {
	if m.legacy == nil {
		return nil, fmt.Errorf("twitter oauth1: %w", domain.ErrConfiguration)
	}
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", domain.ErrMissingParameters)
	}
	base, err := m.baseURL(redirectBase)
	if err != nil {
		return nil, err
	}
	callback := base + LegacyCallbackPath
	token, secret, err := m.legacy.RequestToken(ctx, callback)
	if err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, userID, "legacy_start", fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err))
	}
	session := &domain.AuthSession{
		State:              token,
		Platform:           domain.PlatformTwitter,
		UserID:             userID,
		RedirectURI:        callback,
		RequestToken:       token,
		RequestTokenSecret: secret,
		CreatedAt:          m.now().UnixMilli(),
	}
	if err := m.saveSession(ctx, oauth1SessionPrefix+token, session); err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, userID, "legacy_start", err)
	}
	observability.RecordAuthFlow(ctx, string(domain.PlatformTwitter), "legacy_start", "success")
	m.observer.Observe(ctx, observability.Event{
		Kind:     observability.EventAuthStarted,
		Platform: string(domain.PlatformTwitter),
		UserID:   userID,
		Fields:   map[string]any{"flow": "oauth1"},
	})
	return &domain.AuthStart{
		AuthURL:     m.legacy.AuthorizeURL(token),
		State:       token,
		Platform:    domain.PlatformTwitter,
		RedirectURI: callback,
	}, nil
}

// CompleteLegacyAuth merges the user's OAuth1.0a credentials into their
// Twitter token record, creating the record if needed.
func (m *OAuthSessionManager) CompleteLegacyAuth(ctx context.Context, oauthToken, verifier string) (*domain.PlatformToken, error) {
	if m.legacy == nil {
		return nil, fmt.Errorf("twitter oauth1: %w", domain.ErrConfiguration)
	}
	if oauthToken == "" || verifier == "" {
		return nil, fmt.Errorf("oauth_token and oauth_verifier: %w", domain.ErrMissingParameters)
	}
	key := oauth1SessionPrefix + oauthToken
	session, err := m.loadSession(ctx, key)
	if err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, "", "legacy_callback", err)
	}
	creds, err := m.legacy.AccessToken(ctx, session.RequestToken, session.RequestTokenSecret, verifier)
	if err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, session.UserID, "legacy_exchange", fmt.Errorf("%w: %w", domain.ErrTokenExchangeFailed, err))
	}

	record, err := m.existingOrNew(ctx, domain.PlatformTwitter, session.UserID)
	if err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, session.UserID, "persist", err)
	}
	record.LegacyToken = creds.Token
	record.LegacyTokenSecret = creds.Secret
	if record.PlatformUserID == "" {
		record.PlatformUserID = creds.UserID
	}
	if record.Username == "" {
		record.Username = creds.ScreenName
	}
	if err := m.tokens.Save(ctx, record); err != nil {
		return nil, m.authFailed(ctx, domain.PlatformTwitter, session.UserID, "persist", err)
	}
	m.dropSession(ctx, key, domain.PlatformTwitter, session.UserID)

	observability.RecordAuthFlow(ctx, string(domain.PlatformTwitter), "legacy_callback", "success")
	m.observer.Observe(ctx, observability.Event{
		Kind:     observability.EventAuthCompleted,
		Platform: string(domain.PlatformTwitter),
		UserID:   session.UserID,
		Fields:   map[string]any{"flow": "oauth1", "username": record.Username},
	})
	return record, nil
}
