package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/store"
)

const DefaultTokenTTL = 30 * 24 * time.Hour

func tokenKey(platform domain.Platform, userID string) string {
	return "token:" + string(platform) + ":" + userID
}

// PlatformTokenStore persists one credential record per (platform, user).
// Every write restarts the record's TTL.
type PlatformTokenStore struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewPlatformTokenStore(kv store.Store, ttl time.Duration) *PlatformTokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &PlatformTokenStore{store: kv, ttl: ttl, now: time.Now}
}

func (s *PlatformTokenStore) Save(ctx context.Context, token *domain.PlatformToken) error {
	if token == nil || token.Platform == "" || token.UserID == "" {
		return fmt.Errorf("save token: %w", domain.ErrMissingParameters)
	}
	now := s.now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := s.store.Set(ctx, tokenKey(token.Platform, token.UserID), string(raw), s.ttl); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Get returns ErrNotConnected when nothing is stored for the pair.
func (s *PlatformTokenStore) Get(ctx context.Context, platform domain.Platform, userID string) (*domain.PlatformToken, error) {
	raw, ok, err := s.store.Get(ctx, tokenKey(platform, userID))
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", platform, domain.ErrNotConnected)
	}
	var token domain.PlatformToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &token, nil
}

func (s *PlatformTokenStore) Delete(ctx context.Context, platform domain.Platform, userID string) (bool, error) {
	n, err := s.store.Del(ctx, tokenKey(platform, userID))
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	return n > 0, nil
}
