package twitter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	APIBase      string
}

// OAuthProvider runs the OAuth2 authorization-code flow with PKCE against
// Twitter/X.
type OAuthProvider struct {
	cfg    OAuthConfig
	client *http.Client
}

func NewOAuthProvider(cfg OAuthConfig, client *http.Client) *OAuthProvider {
	if client == nil {
		client = social.NewHTTPClient(0)
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &OAuthProvider{cfg: cfg, client: client}
}

func (p *OAuthProvider) Platform() domain.Platform { return domain.PlatformTwitter }

func (p *OAuthProvider) oauth2Config(redirectURI string) *oauth2.Config {
	style := oauth2.AuthStyleInHeader
	if p.cfg.ClientSecret == "" {
		// Public clients identify themselves in the body.
		style = oauth2.AuthStyleInParams
	}
	return &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       p.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.cfg.AuthURL,
			TokenURL:  p.cfg.TokenURL,
			AuthStyle: style,
		},
	}
}

func (p *OAuthProvider) AuthCodeURL(state, challenge, redirectURI string) string {
	return p.oauth2Config(redirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

func (p *OAuthProvider) Exchange(ctx context.Context, code, verifier, redirectURI string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	return p.oauth2Config(redirectURI).Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

type meResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"data"`
}

func (p *OAuthProvider) FetchProfile(ctx context.Context, accessToken string) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.APIBase+"/2/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	var out meResponse
	if err := social.Do(p.client, req, social.Call{Platform: domain.PlatformTwitter, Operation: "fetch profile", APIVersion: APIVersionV2}, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, fmt.Errorf("twitter profile response carried no id")
	}
	return &domain.Profile{ID: out.Data.ID, Username: out.Data.Username, Name: out.Data.Name}, nil
}

// Refresh trades the stored refresh token for a new access token. Twitter
// rotates refresh tokens, so the returned token must replace both.
func (p *OAuthProvider) Refresh(ctx context.Context, token *domain.PlatformToken) (*oauth2.Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, fmt.Errorf("twitter: no refresh token stored")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	src := p.oauth2Config("").TokenSource(ctx, &oauth2.Token{
		RefreshToken: token.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	return src.Token()
}
