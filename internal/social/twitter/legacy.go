package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

// LegacyCredentials are the user-level OAuth1.0a token pair.
type LegacyCredentials struct {
	Token      string
	Secret     string
	UserID     string
	ScreenName string
}

// LegacyAuthProvider links a user's account through the three-legged
// OAuth1.0a flow so the v1.1 fallback can post as that user.
type LegacyAuthProvider struct {
	consumerKey    string
	consumerSecret string
	baseURL        string
	client         *http.Client
	sign           func(security.OAuth1Request, security.OAuth1Credentials) (string, error)
}

func NewLegacyAuthProvider(consumerKey, consumerSecret, baseURL string, client *http.Client) *LegacyAuthProvider {
	if client == nil {
		client = social.NewHTTPClient(0)
	}
	if baseURL == "" {
		baseURL = "https://api.twitter.com"
	}
	return &LegacyAuthProvider{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		baseURL:        strings.TrimRight(baseURL, "/"),
		client:         client,
		sign:           security.OAuth1Header,
	}
}

func (p *LegacyAuthProvider) RequestToken(ctx context.Context, callbackURL string) (token, secret string, err error) {
	values, err := p.call(ctx, "/oauth/request_token", security.OAuth1Credentials{
		ConsumerKey:    p.consumerKey,
		ConsumerSecret: p.consumerSecret,
	}, map[string]string{"oauth_callback": callbackURL}, "request token")
	if err != nil {
		return "", "", err
	}
	if values.Get("oauth_callback_confirmed") != "true" {
		return "", "", fmt.Errorf("twitter did not confirm the oauth callback")
	}
	token, secret = values.Get("oauth_token"), values.Get("oauth_token_secret")
	if token == "" || secret == "" {
		return "", "", fmt.Errorf("twitter request token response is incomplete")
	}
	return token, secret, nil
}

func (p *LegacyAuthProvider) AuthorizeURL(requestToken string) string {
	return p.baseURL + "/oauth/authorize?oauth_token=" + url.QueryEscape(requestToken)
}

func (p *LegacyAuthProvider) AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*LegacyCredentials, error) {
	values, err := p.call(ctx, "/oauth/access_token", security.OAuth1Credentials{
		ConsumerKey:    p.consumerKey,
		ConsumerSecret: p.consumerSecret,
		Token:          requestToken,
		TokenSecret:    requestSecret,
	}, map[string]string{"oauth_verifier": verifier}, "access token")
	if err != nil {
		return nil, err
	}
	creds := &LegacyCredentials{
		Token:      values.Get("oauth_token"),
		Secret:     values.Get("oauth_token_secret"),
		UserID:     values.Get("user_id"),
		ScreenName: values.Get("screen_name"),
	}
	if creds.Token == "" || creds.Secret == "" {
		return nil, fmt.Errorf("twitter access token response is incomplete")
	}
	return creds, nil
}

func (p *LegacyAuthProvider) call(ctx context.Context, path string, creds security.OAuth1Credentials, protocol map[string]string, op string) (url.Values, error) {
	endpoint := p.baseURL + path
	header, err := p.sign(security.OAuth1Request{Method: http.MethodPost, URL: endpoint, Protocol: protocol}, creds)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &domain.PlatformAPIError{Platform: domain.PlatformTwitter, Operation: op, APIVersion: "oauth1", Body: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.PlatformAPIError{Platform: domain.PlatformTwitter, Operation: op, StatusCode: resp.StatusCode, Body: string(body), APIVersion: "oauth1"}
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s response: %w", op, err)
	}
	return values, nil
}
