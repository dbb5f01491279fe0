package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
)

type fakeTwitter struct {
	v2Status int
	v2Calls  atomic.Int32
	v1Calls  atomic.Int32

	mu         sync.Mutex
	lastV2Body map[string]any
	lastV1Auth string
	lastStatus string
}

func (f *fakeTwitter) snapshot() (map[string]any, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastV2Body, f.lastV1Auth, f.lastStatus
}

func (f *fakeTwitter) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		f.v2Calls.Add(1)
		assert.Equal(t, "Bearer user-bearer", r.Header.Get("Authorization"))
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastV2Body = body
		f.mu.Unlock()
		if f.v2Status != 0 {
			w.WriteHeader(f.v2Status)
			_, _ = w.Write([]byte(`{"title":"Forbidden","detail":"oauth2 user context required"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1790","text":"hi"}}`))
	})
	mux.HandleFunc("/1.1/statuses/update.json", func(w http.ResponseWriter, r *http.Request) {
		f.v1Calls.Add(1)
		assert.NoError(t, r.ParseForm())
		f.mu.Lock()
		f.lastV1Auth = r.Header.Get("Authorization")
		f.lastStatus = r.PostForm.Get("status")
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id_str":"555","user":{"screen_name":"alice"}}`))
	})
	return mux
}

func newTestPoster(srv *httptest.Server, bearer string, oauth1 *security.OAuth1Credentials, obs observability.Observer) *Poster {
	return NewPoster(PosterOptions{
		Client:   srv.Client(),
		APIBase:  srv.URL,
		Bearer:   bearer,
		OAuth1:   oauth1,
		Username: "alice",
		Observer: obs,
	})
}

var appCreds = &security.OAuth1Credentials{ConsumerKey: "ck", ConsumerSecret: "cs", Token: "t", TokenSecret: "ts"}

func TestPosterUsesV2WhenAvailable(t *testing.T) {
	fake := &fakeTwitter{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	res, err := newTestPoster(srv, "user-bearer", appCreds, nil).Post(context.Background(), "hi", domain.PostOptions{ReplyToID: "77", MediaIDs: []string{"m1"}})
	require.NoError(t, err)
	assert.Equal(t, "1790", res.PostID)
	assert.Equal(t, APIVersionV2, res.APIVersion)
	assert.Equal(t, "https://x.com/alice/status/1790", res.URL)
	assert.EqualValues(t, 0, fake.v1Calls.Load())
	body, _, _ := fake.snapshot()
	assert.Equal(t, "hi", body["text"])
	assert.Equal(t, map[string]any{"in_reply_to_tweet_id": "77"}, body["reply"])
}

func TestPosterFallsBackToV1OnV2Failure(t *testing.T) {
	fake := &fakeTwitter{v2Status: http.StatusForbidden}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()
	obs := &observability.RecordingObserver{}

	p := newTestPoster(srv, "user-bearer", appCreds, obs)
	p.sign = func(req security.OAuth1Request, creds security.OAuth1Credentials) (string, error) {
		return security.SignOAuth1(req, creds, "fixed-nonce", 1700000000)
	}
	status := "Hello Ladies + Gentlemen, a signed OAuth request!"
	res, err := p.Post(context.Background(), status, domain.PostOptions{})
	require.NoError(t, err)
	assert.Equal(t, APIVersionV11, res.APIVersion)
	assert.Equal(t, "555", res.PostID)
	assert.Equal(t, "https://x.com/alice/status/555", res.URL)
	_, auth, gotStatus := fake.snapshot()
	assert.Equal(t, status, gotStatus)
	assert.True(t, strings.HasPrefix(auth, "OAuth "))
	assert.Contains(t, auth, `oauth_nonce="fixed-nonce"`)
	assert.Contains(t, auth, `oauth_token="t"`)
	assert.EqualValues(t, 1, fake.v2Calls.Load())
	assert.Equal(t, 1, obs.Count(observability.EventAPIFallback))
}

func TestPosterV2FailureWithoutOAuth1ReturnsAPIError(t *testing.T) {
	fake := &fakeTwitter{v2Status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, err := newTestPoster(srv, "user-bearer", nil, nil).Post(context.Background(), "hi", domain.PostOptions{})
	var apiErr *domain.PlatformAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, APIVersionV2, apiErr.APIVersion)
	assert.True(t, domain.IsRetryable(err))
}

func TestPosterBothPathsFailingReportsBoth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestPoster(srv, "user-bearer", appCreds, nil).Post(context.Background(), "hi", domain.PostOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v2:")
	assert.Contains(t, err.Error(), "v1.1:")
	assert.ErrorIs(t, err, domain.ErrPlatformAPI)
}

func TestPosterV1SuccessWithoutStatusIDIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"screen_name":"alice"}}`))
	}))
	defer srv.Close()

	res, err := newTestPoster(srv, "", appCreds, nil).Post(context.Background(), "hi", domain.PostOptions{})
	assert.Nil(t, res)
	var apiErr *domain.PlatformAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, APIVersionV11, apiErr.APIVersion)
	assert.Equal(t, "update status", apiErr.Operation)
	assert.ErrorIs(t, err, domain.ErrPlatformAPI)
}

func TestPosterRejectsOverlongContentWithoutCallingAPI(t *testing.T) {
	fake := &fakeTwitter{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	_, err := newTestPoster(srv, "user-bearer", appCreds, nil).Post(context.Background(), strings.Repeat("a", 281), domain.PostOptions{})
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, domain.IsRetryable(err))
	assert.EqualValues(t, 0, fake.v2Calls.Load())
	assert.EqualValues(t, 0, fake.v1Calls.Load())
}

func TestValidateContentCountsURLsAsTwentyThree(t *testing.T) {
	p := NewPoster(PosterOptions{Bearer: "x"})
	text := strings.Repeat("a", 256) + " https://example.com/" + strings.Repeat("b", 200)
	report := p.ValidateContent(text, domain.PostOptions{})
	assert.True(t, report.Valid, "errors: %v", report.Errors)
	assert.Equal(t, 280, report.Length)
	assert.Equal(t, MaxLength, report.Limit)

	report = p.ValidateContent("   ", domain.PostOptions{ImageURL: "https://cdn/x.png"})
	assert.False(t, report.Valid)
	assert.NotEmpty(t, report.Warnings)
}

func TestPosterWithoutCredentialsIsConfigurationError(t *testing.T) {
	_, err := NewPoster(PosterOptions{}).Post(context.Background(), "hi", domain.PostOptions{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestFactoryChoosesCredentials(t *testing.T) {
	f := NewFactory(FactoryConfig{ConsumerKey: "ck", ConsumerSecret: "cs"}, nil, nil, nil)

	_, err := f.NewPoster(&domain.PlatformToken{Platform: domain.PlatformTwitter})
	assert.ErrorIs(t, err, domain.ErrNotConnected)

	p, err := f.NewPoster(&domain.PlatformToken{LegacyToken: "lt", LegacyTokenSecret: "ls"})
	require.NoError(t, err)
	tp := p.(*Poster)
	require.NotNil(t, tp.oauth1)
	assert.Equal(t, "lt", tp.oauth1.Token)
	assert.Empty(t, tp.bearer)

	withApp := NewFactory(FactoryConfig{ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "app", AccessTokenSecret: "apps"}, nil, nil, nil)
	p, err = withApp.NewPoster(&domain.PlatformToken{AccessToken: "bearer"})
	require.NoError(t, err)
	assert.Equal(t, "app", p.(*Poster).oauth1.Token)
}

func TestOAuthProviderExchangeAndProfile(t *testing.T) {
	var (
		formMu  sync.Mutex
		gotForm map[string]string
	)
	form := func(k string) string {
		formMu.Lock()
		defer formMu.Unlock()
		return gotForm[k]
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		formMu.Lock()
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		formMu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("grant_type") == "refresh_token" {
			_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"bearer","expires_in":7200}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":7200,"scope":"tweet.write"}`))
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"99","username":"alice","name":"Alice"}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewOAuthProvider(OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"tweet.write", "offline.access"},
		AuthURL:      srv.URL + "/i/oauth2/authorize",
		TokenURL:     srv.URL + "/2/oauth2/token",
		APIBase:      srv.URL,
	}, srv.Client())

	authURL := p.AuthCodeURL("state-1", "challenge-1", "https://app.example/api/v1/auth/twitter/callback")
	assert.Contains(t, authURL, "code_challenge=challenge-1")
	assert.Contains(t, authURL, "code_challenge_method=S256")
	assert.Contains(t, authURL, "state=state-1")
	assert.Contains(t, authURL, "response_type=code")
	assert.Contains(t, authURL, "redirect_uri=https%3A%2F%2Fapp.example%2Fapi%2Fv1%2Fauth%2Ftwitter%2Fcallback")

	tok, err := p.Exchange(context.Background(), "code-1", "verifier-1", "https://app.example/api/v1/auth/twitter/callback")
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "verifier-1", form("code_verifier"))
	assert.Equal(t, "https://app.example/api/v1/auth/twitter/callback", form("redirect_uri"))

	profile, err := p.FetchProfile(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)

	refreshed, err := p.Refresh(context.Background(), &domain.PlatformToken{RefreshToken: "rt-1"})
	require.NoError(t, err)
	assert.Equal(t, "at-2", refreshed.AccessToken)
	assert.Equal(t, "rt-2", refreshed.RefreshToken)
	assert.Equal(t, "rt-1", form("refresh_token"))
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), refreshed.Expiry, time.Minute)
}

func TestLegacyAuthProviderThreeLeggedFlow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/request_token", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.Contains(t, auth, "oauth_callback=")
		assert.NotContains(t, auth, "oauth_token=")
		_, _ = w.Write([]byte("oauth_token=req&oauth_token_secret=reqsecret&oauth_callback_confirmed=true"))
	})
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		assert.Contains(t, auth, `oauth_token="req"`)
		assert.Contains(t, auth, `oauth_verifier="ver"`)
		_, _ = w.Write([]byte("oauth_token=user-tok&oauth_token_secret=user-sec&user_id=99&screen_name=alice"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewLegacyAuthProvider("ck", "cs", srv.URL, srv.Client())
	tok, secret, err := p.RequestToken(context.Background(), "https://app.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "req", tok)
	assert.Equal(t, "reqsecret", secret)
	assert.Equal(t, srv.URL+"/oauth/authorize?oauth_token=req", p.AuthorizeURL(tok))

	creds, err := p.AccessToken(context.Background(), tok, secret, "ver")
	require.NoError(t, err)
	assert.Equal(t, "user-tok", creds.Token)
	assert.Equal(t, "alice", creds.ScreenName)
}
