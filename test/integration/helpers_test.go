package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/di"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
)

const testJWTSecret = "abcdefghijklmnopqrstuvwxyz123456"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

// fakeTwitter serves the subset of the Twitter API the service talks to.
type fakeTwitter struct {
	*httptest.Server
	tweets     atomic.Int64
	legacy     atomic.Int64
	failTweets atomic.Bool
}

func newFakeTwitter(t *testing.T) *fakeTwitter {
	t.Helper()
	f := &fakeTwitter{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code_verifier") == "" {
			http.Error(w, `{"error":"invalid_request"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tw-access","refresh_token":"tw-refresh","token_type":"bearer","expires_in":7200}`)
	})
	mux.HandleFunc("GET /2/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tw-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"9001","username":"gopher","name":"Gopher"}}`)
	})
	mux.HandleFunc("POST /2/tweets", func(w http.ResponseWriter, r *http.Request) {
		if f.failTweets.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		n := f.tweets.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"18`+strings.Repeat("0", int(n))+`","text":"ok"}}`)
	})
	mux.HandleFunc("POST /1.1/statuses/update.json", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") || r.FormValue("status") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.legacy.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id_str":"55","user":{"screen_name":"gopher"}}`)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type harness struct {
	baseURL string
	client  *http.Client
	jwt     *security.JWTManager
	redis   *miniredis.Miniredis
	twitter *fakeTwitter
}

func newHarness(t *testing.T, override func(*config.Config)) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	tw := newFakeTwitter(t)

	cfg := &config.Config{
		AppEnv:          "test",
		HTTPAddr:        "127.0.0.1:0",
		LogLevel:        "error",
		ShutdownTimeout: time.Second,
		CORSOrigins:     []string{"http://localhost:5173"},
		JWT:             config.JWTConfig{Issuer: "spc", Audience: "spc-api", Secret: testJWTSecret},
		Redis:           config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "spc"},
		Twitter: config.TwitterConfig{
			ClientID:   "tw-client",
			Scopes:     []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			AuthURL:    tw.URL + "/i/oauth2/authorize",
			TokenURL:   tw.URL + "/2/oauth2/token",
			APIBaseURL: tw.URL,
		},
		Quota:     config.QuotaConfig{FailOpen: true, GenerateLimit: 5},
		Auth:      config.AuthConfig{SessionTTL: 30 * time.Minute, TokenTTL: 720 * time.Hour, RefreshSkew: 5 * time.Minute},
		Retry:     config.RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond},
		RateLimit: config.RateLimitConfig{APIPerMinute: 1000, AuthPerMinute: 100, PostPerMinute: 100},
		OTel:      config.OTelConfig{ServiceName: "spc-integration", TraceSamplingRatio: 1},
	}
	if override != nil {
		override(cfg)
	}

	a, err := di.InitializeApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	srv := httptest.NewServer(a.Server.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown()
	})

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &harness{
		baseURL: srv.URL,
		client:  client,
		jwt:     security.NewJWTManager(cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Secret),
		redis:   mr,
		twitter: tw,
	}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := h.jwt.SignAccessToken(userID, "pro", []string{"post"}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func (h *harness) do(t *testing.T, method, path, bearer string, body io.Reader) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, h.baseURL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s %s: %v body=%s", method, path, err, raw)
		}
	}
	return resp, env
}
