package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Claims struct {
	TokenType string   `json:"token_type"`
	Email     string   `json:"email,omitempty"`
	Plan      string   `json:"plan,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// UserID is the subject the token was issued for.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// JWTManager verifies the bearer tokens issued by the account service. It can
// also mint tokens for local development.
type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

func (m *JWTManager) SignAccessToken(userID, plan string, scopes []string, ttl time.Duration) (string, error) {
	return m.SignAccessTokenWithJTI(userID, plan, scopes, ttl, uuid.NewString())
}

func (m *JWTManager) SignAccessTokenWithJTI(userID, plan string, scopes []string, ttl time.Duration, jti string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if jti == "" {
		jti = uuid.NewString()
	}
	now := time.Now()
	claims := Claims{
		TokenType: "access",
		Plan:      plan,
		Scopes:    scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != "access" {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
