package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/social-publishing-core/internal/health"
	"github.com/sandeepkv93/social-publishing-core/internal/http/handler"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	ConnectionHandler *handler.ConnectionHandler
	PostHandler       *handler.PostHandler
	QuotaHandler      *handler.QuotaHandler
	JWTManager        *security.JWTManager
	Logger            *slog.Logger
	CORSOrigins       []string
	APIRateLimitRPM   int
	AuthRateLimitRPM  int
	PostRateLimitRPM  int
	GlobalRateLimiter GlobalRateLimiterFunc
	AuthRateLimiter   AuthRateLimiterFunc
	PostRateLimiter   PostRateLimiterFunc
	Readiness         *health.ProbeRunner
	EnableOTelHTTP    bool
}

type GlobalRateLimiterFunc func(http.Handler) http.Handler
type AuthRateLimiterFunc func(http.Handler) http.Handler
type PostRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	postLimiter := dep.PostRateLimiter
	if postLimiter == nil {
		postLimiter = middleware.NewRateLimiterWithKey(dep.PostRateLimitRPM, time.Minute, middleware.SubjectOrIPKeyFunc(dep.JWTManager)).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.JWTManager)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(requireAuth, authLimiter).Get("/twitter/legacy/start", dep.AuthHandler.LegacyStart)
			r.With(authLimiter).Get("/twitter/legacy/callback", dep.AuthHandler.LegacyCallback)
			r.With(requireAuth, authLimiter).Get("/{platform}/start", dep.AuthHandler.Start)
			r.With(authLimiter).Get("/{platform}/callback", dep.AuthHandler.Callback)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/connections", dep.ConnectionHandler.List)
			r.Get("/connections/{platform}", dep.ConnectionHandler.Get)
			r.Delete("/connections/{platform}", dep.ConnectionHandler.Delete)
			r.With(postLimiter).Post("/posts", dep.PostHandler.Create)
			r.Post("/quota/cost", dep.QuotaHandler.RecordCost)
			r.Get("/quota/report", dep.QuotaHandler.Report)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuthMiddleware(dep.JWTManager))
			r.Get("/quota", dep.QuotaHandler.Check)
			r.Post("/quota/consume", dep.QuotaHandler.Consume)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
