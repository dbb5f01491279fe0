package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:          "test",
		HTTPAddr:        "127.0.0.1:0",
		LogLevel:        "error",
		ShutdownTimeout: time.Second,
		JWT:             config.JWTConfig{Issuer: "spc", Audience: "spc-api", Secret: "abcdefghijklmnopqrstuvwxyz123456"},
		Auth:            config.AuthConfig{SessionTTL: 30 * time.Minute, TokenTTL: 720 * time.Hour},
		Retry:           config.RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond},
		Quota:           config.QuotaConfig{FailOpen: true, GenerateLimit: 2},
		RateLimit:       config.RateLimitConfig{APIPerMinute: 100, AuthPerMinute: 10, PostPerMinute: 10},
		OTel:            config.OTelConfig{ServiceName: "spc-test", TraceSamplingRatio: 1},
	}
}

func TestInitializeCoreUsesInMemoryStoreWithoutRedis(t *testing.T) {
	ctx := context.Background()
	core, err := InitializeCore(ctx, testConfig())
	if err != nil {
		t.Fatalf("initialize core: %v", err)
	}
	defer func() { _ = core.Close(ctx) }()

	if err := core.Store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := core.Service.ConsumeGeneration(ctx, "cli"); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}
	if d := core.Service.CheckQuota(ctx, "cli"); d.Allowed {
		t.Fatalf("expected quota exhausted after two generations, got %+v", d)
	}
}

func TestInitializeAppServesReadinessAgainstRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "spc"}

	a, err := InitializeApp(context.Background(), cfg)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	defer func() { _ = a.Shutdown() }()

	rr := httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d body=%s", rr.Code, rr.Body.String())
	}

	mr.Close()
	rr = httptest.NewRecorder()
	a.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected unready once redis is gone, got %d", rr.Code)
	}
}

func TestProvidersFollowConfiguredCredentials(t *testing.T) {
	cfg := testConfig()
	client := provideHTTPClient()
	if got := provideOAuthProviders(cfg, client); len(got) != 0 {
		t.Fatalf("expected no providers without credentials, got %d", len(got))
	}
	if provideLegacyProvider(cfg, client) != nil {
		t.Fatal("expected nil legacy provider without consumer credentials")
	}

	cfg.Twitter = config.TwitterConfig{ClientID: "cid", ConsumerKey: "ck", ConsumerSecret: "cs"}
	cfg.Threads = config.ThreadsConfig{AppID: "app", AppSecret: "secret"}
	providers := provideOAuthProviders(cfg, client)
	if len(providers) != 2 || providers[0].Platform() != domain.PlatformTwitter || providers[1].Platform() != domain.PlatformThreads {
		t.Fatalf("unexpected providers %v", providers)
	}
	if provideLegacyProvider(cfg, client) == nil {
		t.Fatal("expected legacy provider with consumer credentials")
	}
}
