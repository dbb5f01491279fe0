package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"

	accessTokenCookie = "access_token"
)

// AuthMiddleware requires a valid access token from the access_token cookie
// or an Authorization bearer header.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := accessToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) (string, string) {
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:]), "bearer"
	}
	return "", "none"
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

// UserIDFromContext is the authenticated subject, or "" outside AuthMiddleware.
func UserIDFromContext(ctx context.Context) string {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return c.UserID()
}

// OptionalAuthMiddleware attaches claims when a token is presented and
// passes anonymous requests through. A bad token is still rejected.
func OptionalAuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	required := AuthMiddleware(jwtMgr)
	return func(next http.Handler) http.Handler {
		withAuth := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, _ := accessToken(r); raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			withAuth.ServeHTTP(w, r)
		})
	}
}
