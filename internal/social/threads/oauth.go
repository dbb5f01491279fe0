package threads

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

type OAuthConfig struct {
	AppID     string
	AppSecret string
	Scopes    []string
	AuthURL   string
	TokenURL  string
	GraphBase string
}

// OAuthProvider runs the Threads authorization-code flow. Short-lived tokens
// from the code exchange are upgraded to long-lived ones when possible.
type OAuthProvider struct {
	cfg    OAuthConfig
	client *http.Client
	now    func() time.Time
}

func NewOAuthProvider(cfg OAuthConfig, client *http.Client) *OAuthProvider {
	if client == nil {
		client = social.NewHTTPClient(0)
	}
	if cfg.GraphBase == "" {
		cfg.GraphBase = "https://graph.threads.net/v1.0"
	}
	cfg.GraphBase = strings.TrimRight(cfg.GraphBase, "/")
	return &OAuthProvider{cfg: cfg, client: client, now: time.Now}
}

func (p *OAuthProvider) Platform() domain.Platform { return domain.PlatformThreads }

func (p *OAuthProvider) oauth2Config(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.cfg.AppID,
		ClientSecret: p.cfg.AppSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.cfg.AuthURL,
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL sends the comma-joined scope list Threads expects.
func (p *OAuthProvider) AuthCodeURL(state, challenge, redirectURI string) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("scope", strings.Join(p.cfg.Scopes, ",")),
	}
	if challenge != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", challenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return p.oauth2Config(redirectURI).AuthCodeURL(state, opts...)
}

func (p *OAuthProvider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	short, err := p.oauth2Config(redirectURI).Exchange(ctx, code, opts...)
	if err != nil {
		return nil, err
	}
	long, err := p.exchangeLongLived(ctx, short.AccessToken)
	if err != nil {
		// The short-lived token still works for about an hour.
		return short, nil
	}
	return long, nil
}

type tokenParams struct {
	GrantType    string `url:"grant_type"`
	ClientSecret string `url:"client_secret,omitempty"`
	AccessToken  string `url:"access_token"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (p *OAuthProvider) exchangeLongLived(ctx context.Context, shortToken string) (*oauth2.Token, error) {
	return p.tokenCall(ctx, "/access_token", tokenParams{
		GrantType:    "th_exchange_token",
		ClientSecret: p.cfg.AppSecret,
		AccessToken:  shortToken,
	}, "exchange long-lived token")
}

// Refresh extends a long-lived token. Threads has no refresh tokens; the
// access token itself is refreshed while it is still valid.
func (p *OAuthProvider) Refresh(ctx context.Context, token *domain.PlatformToken) (*oauth2.Token, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("threads: no access token stored")
	}
	return p.tokenCall(ctx, "/refresh_access_token", tokenParams{
		GrantType:   "th_refresh_token",
		AccessToken: token.AccessToken,
	}, "refresh token")
}

func (p *OAuthProvider) tokenCall(ctx context.Context, path string, params tokenParams, op string) (*oauth2.Token, error) {
	values, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", op, err)
	}
	base := strings.TrimSuffix(p.cfg.GraphBase, "/v1.0")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out tokenResponse
	if err := social.Do(p.client, req, social.Call{Platform: domain.PlatformThreads, Operation: op, APIVersion: APIVersion}, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("threads %s response carried no token", op)
	}
	tok := &oauth2.Token{AccessToken: out.AccessToken, TokenType: out.TokenType}
	if out.ExpiresIn > 0 {
		tok.Expiry = p.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	}
	return tok, nil
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func (p *OAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	values, err := query.Values(fieldsParams{Fields: "id,username,name", AccessToken: accessToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.GraphBase+"/me?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out meResponse
	if err := social.Do(p.client, req, social.Call{Platform: domain.PlatformThreads, Operation: "fetch profile", APIVersion: APIVersion}, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("threads profile response carried no id")
	}
	return &domain.Profile{ID: out.ID, Username: out.Username, Name: out.Name}, nil
}
