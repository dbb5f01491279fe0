package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/http/middleware"
	"github.com/sandeepkv93/social-publishing-core/internal/http/response"
	"github.com/sandeepkv93/social-publishing-core/internal/service"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

// PostRequest is the body of POST /api/v1/posts. Platforms is either the
// string "all" or a list of platform names.
type PostRequest struct {
	Content         string                         `json:"content"`
	Platforms       json.RawMessage                `json:"platforms"`
	PlatformContent map[string]string              `json:"platformContent,omitempty"`
	Options         domain.PostOptions             `json:"options"`
	PlatformOptions map[string]*domain.PostOptions `json:"platformOptions,omitempty"`
	MaxRetries      int                            `json:"maxRetries,omitempty"`
}

type PostHandler struct {
	svc service.PublishingServiceInterface
}

func NewPostHandler(svc service.PublishingServiceInterface) *PostHandler {
	return &PostHandler{svc: svc}
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body PostRequest
	if err := decodeJSON(r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	req, err := body.toDispatch()
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	agg, err := h.svc.Post(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		response.Fail(w, r, err)
		return
	}
	response.Multi(w, r, outcomeStatus(agg.Outcome), agg.Outcome != domain.OutcomeCompleteFailure, agg)
}

func outcomeStatus(o domain.Outcome) int {
	switch o {
	case domain.OutcomeCompleteSuccess:
		return http.StatusOK
	case domain.OutcomePartialSuccess:
		return http.StatusMultiStatus
	default:
		return http.StatusBadGateway
	}
}

func (b PostRequest) toDispatch() (social.DispatchRequest, error) {
	platforms, err := parsePlatforms(b.Platforms)
	if err != nil {
		return social.DispatchRequest{}, err
	}
	req := social.DispatchRequest{
		Content:    b.Content,
		Platforms:  platforms,
		Options:    b.Options,
		MaxRetries: b.MaxRetries,
	}
	if len(b.PlatformContent) > 0 {
		req.PlatformContent = make(map[domain.Platform]string, len(b.PlatformContent))
		for raw, content := range b.PlatformContent {
			p, err := domain.ParsePlatform(raw)
			if err != nil {
				return social.DispatchRequest{}, err
			}
			req.PlatformContent[p] = content
		}
	}
	if len(b.PlatformOptions) > 0 {
		req.PlatformOptions = make(map[domain.Platform]*domain.PostOptions, len(b.PlatformOptions))
		for raw, opts := range b.PlatformOptions {
			p, err := domain.ParsePlatform(raw)
			if err != nil {
				return social.DispatchRequest{}, err
			}
			req.PlatformOptions[p] = opts
		}
	}
	return req, nil
}

func parsePlatforms(raw json.RawMessage) ([]domain.Platform, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("platforms: %w", domain.ErrMissingParameters)
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		if strings.EqualFold(strings.TrimSpace(one), "all") {
			return append([]domain.Platform(nil), domain.AllPlatforms...), nil
		}
		p, err := domain.ParsePlatform(one)
		if err != nil {
			return nil, err
		}
		return []domain.Platform{p}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf(`%w: platforms must be "all" or a list of platform names`, domain.ErrMissingParameters)
	}
	out := make([]domain.Platform, 0, len(many))
	for _, s := range many {
		p, err := domain.ParsePlatform(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
