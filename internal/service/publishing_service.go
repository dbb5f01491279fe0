package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

// PublishingService is the surface the HTTP layer and CLI talk to. It gates
// auth and posting on the quota ledger and resolves posters from stored
// tokens.
type PublishingService struct {
	sessions   *OAuthSessionManager
	quota      *QuotaLedger
	dispatcher *social.Dispatcher
	factories  map[domain.Platform]social.PosterFactory
	limits     config.QuotaConfig
	logger     *slog.Logger
}

func NewPublishingService(
	sessions *OAuthSessionManager,
	quota *QuotaLedger,
	dispatcher *social.Dispatcher,
	factories []social.PosterFactory,
	limits config.QuotaConfig,
	logger *slog.Logger,
) *PublishingService {
	if logger == nil {
		logger = slog.Default()
	}
	byPlatform := make(map[domain.Platform]social.PosterFactory, len(factories))
	for _, f := range factories {
		if f != nil {
			byPlatform[f.Platform()] = f
		}
	}
	return &PublishingService{
		sessions:   sessions,
		quota:      quota,
		dispatcher: dispatcher,
		factories:  byPlatform,
		limits:     limits,
		logger:     logger,
	}
}

func authQuotaID(userID string) string { return "auth:" + userID }
func postQuotaID(userID string) string { return "post:" + userID }

func (s *PublishingService) StartAuth(ctx context.Context, platform domain.Platform, userID, redirectBase string) (*domain.AuthStart, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", domain.ErrMissingParameters)
	}
	if _, err := s.quota.Consume(ctx, authQuotaID(userID), s.limits.AuthLimit); err != nil {
		return nil, err
	}
	return s.sessions.StartAuth(ctx, platform, userID, redirectBase)
}

func (s *PublishingService) CompleteAuth(ctx context.Context, platform domain.Platform, code, state string) (*domain.PlatformToken, error) {
	return s.sessions.CompleteAuth(ctx, platform, code, state)
}

func (s *PublishingService) StartLegacyAuth(ctx context.Context, userID, redirectBase string) (*domain.AuthStart, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id: %w", domain.ErrMissingParameters)
	}
	if _, err := s.quota.Consume(ctx, authQuotaID(userID), s.limits.AuthLimit); err != nil {
		return nil, err
	}
	return s.sessions.StartLegacyAuth(ctx, userID, redirectBase)
}

func (s *PublishingService) CompleteLegacyAuth(ctx context.Context, oauthToken, verifier string) (*domain.PlatformToken, error) {
	return s.sessions.CompleteLegacyAuth(ctx, oauthToken, verifier)
}

func (s *PublishingService) CheckConnection(ctx context.Context, platform domain.Platform, userID string) (domain.ConnectionStatus, error) {
	return s.sessions.CheckConnection(ctx, platform, userID)
}

func (s *PublishingService) Disconnect(ctx context.Context, platform domain.Platform, userID string) (bool, error) {
	return s.sessions.Disconnect(ctx, platform, userID)
}

// Post checks every target first: a platform that cannot be resolved or
// whose poster rejects the content is settled before any quota is spent.
// When no target is postable and every refusal is a validation or
// configuration problem, that error is returned and nothing is consumed.
// Otherwise one unit of the user's post quota pays for the fan-out and
// platform failures land in the aggregate.
func (s *PublishingService) Post(ctx context.Context, userID string, req social.DispatchRequest) (domain.AggregateResult, error) {
	if userID == "" {
		return domain.AggregateResult{}, fmt.Errorf("user id: %w", domain.ErrMissingParameters)
	}
	if len(req.Platforms) == 0 {
		return domain.AggregateResult{}, fmt.Errorf("platforms: %w", domain.ErrMissingParameters)
	}
	for _, p := range req.Platforms {
		if !p.Valid() {
			return domain.AggregateResult{}, fmt.Errorf("%q: %w", p, domain.ErrUnsupportedPlatform)
		}
	}

	order, targets := s.prepare(ctx, userID, req)
	ready := 0
	var refusal error
	onlyRefusals := true
	for _, p := range order {
		err := targets[p].err
		switch {
		case err == nil:
			ready++
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration):
			if refusal == nil {
				refusal = err
			}
		default:
			onlyRefusals = false
		}
	}
	if ready == 0 && onlyRefusals {
		s.logger.InfoContext(ctx, "post refused before dispatch", "user_id", userID, "code", domain.ErrorCode(refusal))
		return domain.AggregateResult{}, refusal
	}
	if ready > 0 {
		if _, err := s.quota.Consume(ctx, postQuotaID(userID), s.limits.PostLimit); err != nil {
			return domain.AggregateResult{}, err
		}
	}

	result := s.dispatcher.PostToAll(ctx, req, social.PosterResolverFunc(func(ctx context.Context, p domain.Platform) (social.Poster, error) {
		t, ok := targets[p]
		if !ok {
			return s.resolver(userID).Resolve(ctx, p)
		}
		return t.poster, t.err
	}))
	s.logger.InfoContext(ctx, "post dispatched",
		"user_id", userID,
		"dispatch_id", result.DispatchID,
		"outcome", string(result.Outcome),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// preparedTarget is a resolved poster that accepted the content, or the
// reason the platform will not be posted to.
type preparedTarget struct {
	poster social.Poster
	err    error
}

// prepare resolves and validates each distinct platform concurrently. order
// keeps the first-seen order of req.Platforms.
func (s *PublishingService) prepare(ctx context.Context, userID string, req social.DispatchRequest) ([]domain.Platform, map[domain.Platform]preparedTarget) {
	seen := make(map[domain.Platform]struct{}, len(req.Platforms))
	order := make([]domain.Platform, 0, len(req.Platforms))
	for _, p := range req.Platforms {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		order = append(order, p)
	}

	resolver := s.resolver(userID)
	prepared := make([]preparedTarget, len(order))
	var g errgroup.Group
	for i, p := range order {
		g.Go(func() error {
			prepared[i] = prepareTarget(ctx, resolver, p, req)
			return nil
		})
	}
	_ = g.Wait()

	targets := make(map[domain.Platform]preparedTarget, len(order))
	for i, p := range order {
		targets[p] = prepared[i]
	}
	return order, targets
}

func prepareTarget(ctx context.Context, resolver social.PosterResolver, p domain.Platform, req social.DispatchRequest) (t preparedTarget) {
	defer func() {
		if rec := recover(); rec != nil {
			t = preparedTarget{err: fmt.Errorf("%s: poster panicked: %v", p, rec)}
		}
	}()
	poster, err := resolver.Resolve(ctx, p)
	if err != nil {
		return preparedTarget{err: err}
	}
	report := poster.ValidateContent(req.ContentFor(p), req.OptionsFor(p))
	if !report.Valid {
		problems := report.Errors
		if len(problems) == 0 {
			problems = []string{"content rejected"}
		}
		return preparedTarget{err: &domain.ValidationError{Platform: p, Problems: problems}}
	}
	return preparedTarget{poster: poster}
}

// CheckQuota reports the generation quota for identifier without using it.
func (s *PublishingService) CheckQuota(ctx context.Context, identifier string) domain.QuotaDecision {
	return s.quota.Check(ctx, identifier, s.limits.GenerateLimit)
}

func (s *PublishingService) ConsumeGeneration(ctx context.Context, identifier string) (domain.QuotaDecision, error) {
	if identifier == "" {
		return domain.QuotaDecision{}, fmt.Errorf("identifier: %w", domain.ErrMissingParameters)
	}
	return s.quota.Consume(ctx, identifier, s.limits.GenerateLimit)
}

func (s *PublishingService) RecordGenerationCost(ctx context.Context, usage domain.TokenUsage) (domain.CostReport, error) {
	if usage.InputTokens < 0 || usage.OutputTokens < 0 {
		return domain.CostReport{}, fmt.Errorf("%w: token counts must not be negative", domain.ErrValidation)
	}
	return s.quota.TrackCost(ctx, usage)
}

func (s *PublishingService) UsageReport(ctx context.Context, date string) (domain.UsageReport, error) {
	return s.quota.UsageReport(ctx, date)
}
