package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sandeepkv93/social-publishing-core/internal/app"
	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/health"
	"github.com/sandeepkv93/social-publishing-core/internal/http/handler"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/router"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/service"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
	"github.com/sandeepkv93/social-publishing-core/internal/social/threads"
	"github.com/sandeepkv93/social-publishing-core/internal/social/twitter"
	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

const (
	platformHTTPTimeout = 30 * time.Second
	readinessTimeout    = 2 * time.Second
	rateLimitWindow     = time.Minute
)

// Core is the service graph without the HTTP surface. The CLI uses it to run
// operations directly against the configured store.
type Core struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      store.Store
	Service    *service.PublishingService
	JWTManager *security.JWTManager
	Runtime    *observability.Runtime

	closeStore app.Closer
}

func (c *Core) Close(ctx context.Context) error {
	var err error
	if c.closeStore != nil {
		err = c.closeStore()
	}
	if shutdownErr := c.Runtime.Shutdown(ctx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

var ConfigSet = wire.NewSet(
	provideLogProvider,
	provideLogger,
	provideObservabilityRuntime,
	provideStoreHandle,
	provideStore,
	provideStoreCloser,
	provideObserver,
	provideJWTManager,
)

var ServiceSet = wire.NewSet(
	provideHTTPClient,
	provideTokenStore,
	provideOAuthProviders,
	provideLegacyProvider,
	provideSessionManager,
	provideQuotaLedger,
	provideRetrier,
	provideDispatcher,
	providePosterFactories,
	providePublishingService,
	wire.Bind(new(service.PublishingServiceInterface), new(*service.PublishingService)),
)

var HTTPSet = wire.NewSet(
	provideAuthHandler,
	handler.NewConnectionHandler,
	handler.NewPostHandler,
	handler.NewQuotaHandler,
	provideReadiness,
	provideRouterDependencies,
	router.NewRouter,
	provideHTTPServer,
	app.New,
)

func provideLogProvider(ctx context.Context, cfg *config.Config) (*sdklog.LoggerProvider, error) {
	return observability.InitLogs(ctx, cfg)
}

func provideLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.OTel.ServiceName, lp)
	slog.SetDefault(logger)
	return logger
}

func provideObservabilityRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

type storeHandle struct {
	kv    store.Store
	close app.Closer
}

// provideStoreHandle connects to Redis when an address is configured and
// falls back to the process-local store otherwise.
func provideStoreHandle(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storeHandle, error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("redis address not configured, using in-memory store")
		return storeHandle{kv: store.NewInMemoryStore(), close: func() error { return nil }}, nil
	}
	client, err := store.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return storeHandle{}, fmt.Errorf("connect redis: %w", err)
	}
	return storeHandle{kv: store.NewRedisStore(client, cfg.Redis.KeyPrefix), close: client.Close}, nil
}

func provideStore(h storeHandle) store.Store { return h.kv }

func provideStoreCloser(h storeHandle) app.Closer { return h.close }

func provideObserver(runtime *observability.Runtime, logger *slog.Logger) observability.Observer {
	return runtime.Observer(logger)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.Secret)
}

func provideHTTPClient() *http.Client {
	return social.NewHTTPClient(platformHTTPTimeout)
}

func provideTokenStore(kv store.Store, cfg *config.Config) *service.PlatformTokenStore {
	return service.NewPlatformTokenStore(kv, cfg.Auth.TokenTTL)
}

func provideOAuthProviders(cfg *config.Config, client *http.Client) []service.OAuthProvider {
	var providers []service.OAuthProvider
	if cfg.TwitterOAuth2Enabled() {
		providers = append(providers, twitter.NewOAuthProvider(twitter.OAuthConfig{
			ClientID:     cfg.Twitter.ClientID,
			ClientSecret: cfg.Twitter.ClientSecret,
			Scopes:       cfg.Twitter.Scopes,
			AuthURL:      cfg.Twitter.AuthURL,
			TokenURL:     cfg.Twitter.TokenURL,
			APIBase:      cfg.Twitter.APIBaseURL,
		}, client))
	}
	if cfg.ThreadsEnabled() {
		providers = append(providers, threads.NewOAuthProvider(threads.OAuthConfig{
			AppID:     cfg.Threads.AppID,
			AppSecret: cfg.Threads.AppSecret,
			Scopes:    cfg.Threads.Scopes,
			AuthURL:   cfg.Threads.AuthURL,
			TokenURL:  cfg.Threads.TokenURL,
			GraphBase: cfg.Threads.GraphBaseURL,
		}, client))
	}
	return providers
}

func provideLegacyProvider(cfg *config.Config, client *http.Client) service.LegacyAuthProvider {
	if !cfg.TwitterOAuth1Enabled() {
		return nil
	}
	return twitter.NewLegacyAuthProvider(cfg.Twitter.ConsumerKey, cfg.Twitter.ConsumerSecret, cfg.Twitter.OAuth1BaseURL, client)
}

func provideSessionManager(
	kv store.Store,
	tokens *service.PlatformTokenStore,
	providers []service.OAuthProvider,
	legacy service.LegacyAuthProvider,
	cfg *config.Config,
	observer observability.Observer,
	logger *slog.Logger,
) *service.OAuthSessionManager {
	return service.NewOAuthSessionManager(kv, tokens, providers, legacy, service.SessionManagerConfig{
		SessionTTL:      cfg.Auth.SessionTTL,
		RefreshSkew:     cfg.Auth.RefreshSkew,
		FallbackBaseURL: cfg.PublicBaseURL,
	}, observer, logger)
}

func provideQuotaLedger(kv store.Store, cfg *config.Config, observer observability.Observer, logger *slog.Logger) *service.QuotaLedger {
	return service.NewQuotaLedger(kv, cfg.Quota, observer, logger)
}

func provideRetrier(cfg *config.Config, observer observability.Observer) *social.Retrier {
	return social.NewRetrier(cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, observer)
}

func provideDispatcher(retrier *social.Retrier, observer observability.Observer, logger *slog.Logger) *social.Dispatcher {
	return social.NewDispatcher(retrier, observer, logger)
}

func providePosterFactories(cfg *config.Config, client *http.Client, observer observability.Observer, logger *slog.Logger) []social.PosterFactory {
	return []social.PosterFactory{
		twitter.NewFactory(twitter.FactoryConfig{
			APIBase:           cfg.Twitter.APIBaseURL,
			ConsumerKey:       cfg.Twitter.ConsumerKey,
			ConsumerSecret:    cfg.Twitter.ConsumerSecret,
			AccessToken:       cfg.Twitter.AccessToken,
			AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
		}, client, observer, logger),
		threads.NewFactory(threads.FactoryConfig{
			GraphBase:   cfg.Threads.GraphBaseURL,
			SettleDelay: cfg.Threads.SettleDelay,
			PollWait:    cfg.Threads.StatusPollWait,
			MaxPolls:    cfg.Threads.StatusPolls,
		}, client, logger),
	}
}

func providePublishingService(
	sessions *service.OAuthSessionManager,
	quota *service.QuotaLedger,
	dispatcher *social.Dispatcher,
	factories []social.PosterFactory,
	cfg *config.Config,
	logger *slog.Logger,
) *service.PublishingService {
	return service.NewPublishingService(sessions, quota, dispatcher, factories, cfg.Quota, logger)
}

func provideCore(cfg *config.Config, logger *slog.Logger, kv store.Store, svc *service.PublishingService, jwtMgr *security.JWTManager, runtime *observability.Runtime, closeStore app.Closer) *Core {
	return &Core{
		Config:     cfg,
		Logger:     logger,
		Store:      kv,
		Service:    svc,
		JWTManager: jwtMgr,
		Runtime:    runtime,
		closeStore: closeStore,
	}
}

func provideAuthHandler(svc service.PublishingServiceInterface, cfg *config.Config, logger *slog.Logger) *handler.AuthHandler {
	return handler.NewAuthHandler(svc, cfg.Auth.CallbackOrigin, logger)
}

func provideReadiness(kv store.Store) *health.ProbeRunner {
	return health.NewProbeRunner(readinessTimeout, health.StoreChecker{Name: "kv", Store: kv})
}

// provideRouterDependencies shares one store-backed limiter across the
// global, auth and post policies so limits hold across replicas.
func provideRouterDependencies(
	cfg *config.Config,
	logger *slog.Logger,
	kv store.Store,
	jwtMgr *security.JWTManager,
	authHandler *handler.AuthHandler,
	connectionHandler *handler.ConnectionHandler,
	postHandler *handler.PostHandler,
	quotaHandler *handler.QuotaHandler,
	readiness *health.ProbeRunner,
) router.Dependencies {
	limiter := middleware.NewStoreLimiter(kv)
	return router.Dependencies{
		AuthHandler:       authHandler,
		ConnectionHandler: connectionHandler,
		PostHandler:       postHandler,
		QuotaHandler:      quotaHandler,
		JWTManager:        jwtMgr,
		Logger:            logger,
		CORSOrigins:       cfg.CORSOrigins,
		APIRateLimitRPM:   cfg.RateLimit.APIPerMinute,
		AuthRateLimitRPM:  cfg.RateLimit.AuthPerMinute,
		PostRateLimitRPM:  cfg.RateLimit.PostPerMinute,
		GlobalRateLimiter: router.GlobalRateLimiterFunc(
			middleware.NewDistributedRateLimiter(limiter, cfg.RateLimit.APIPerMinute, rateLimitWindow, middleware.FailOpen, "api", nil).
				WithBypassEvaluator(middleware.HealthProbeBypass).
				Middleware(),
		),
		AuthRateLimiter: router.AuthRateLimiterFunc(
			middleware.NewDistributedRateLimiter(limiter, cfg.RateLimit.AuthPerMinute, rateLimitWindow, middleware.FailClosed, "auth", nil).Middleware(),
		),
		PostRateLimiter: router.PostRateLimiterFunc(
			middleware.NewDistributedRateLimiter(limiter, cfg.RateLimit.PostPerMinute, rateLimitWindow, middleware.FailClosed, "post", middleware.SubjectOrIPKeyFunc(jwtMgr)).Middleware(),
		),
		Readiness:      readiness,
		EnableOTelHTTP: cfg.OTel.HTTPInstrumentation,
	}
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
