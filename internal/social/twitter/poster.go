package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/observability"
	"github.com/sandeepkv93/social-publishing-core/internal/security"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

const (
	MaxLength = 280

	APIVersionV2  = "v2"
	APIVersionV11 = "v1.1"
)

// Poster publishes tweets. It prefers the v2 API with the user's OAuth2
// bearer token and falls back to the v1.1 endpoint signed with OAuth1.0a
// when v2 fails and OAuth1 credentials are available.
type Poster struct {
	client   *http.Client
	apiBase  string
	bearer   string
	oauth1   *security.OAuth1Credentials
	username string
	observer observability.Observer
	logger   *slog.Logger
	// sign is swappable so tests can pin nonce and timestamp.
	sign func(security.OAuth1Request, security.OAuth1Credentials) (string, error)
}

type PosterOptions struct {
	Client   *http.Client
	APIBase  string
	Bearer   string
	OAuth1   *security.OAuth1Credentials
	Username string
	Observer observability.Observer
	Logger   *slog.Logger
}

func NewPoster(opts PosterOptions) *Poster {
	if opts.Client == nil {
		opts.Client = social.NewHTTPClient(0)
	}
	if opts.APIBase == "" {
		opts.APIBase = "https://api.twitter.com"
	}
	if opts.Observer == nil {
		opts.Observer = observability.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poster{
		client:   opts.Client,
		apiBase:  strings.TrimRight(opts.APIBase, "/"),
		bearer:   opts.Bearer,
		oauth1:   opts.OAuth1,
		username: opts.Username,
		observer: opts.Observer,
		logger:   opts.Logger,
		sign:     security.OAuth1Header,
	}
}

func (p *Poster) Platform() domain.Platform { return domain.PlatformTwitter }

func (p *Poster) ValidateContent(content string, opts domain.PostOptions) domain.ValidationReport {
	n := social.TwitterLength(content)
	report := domain.ValidationReport{Length: n, Limit: MaxLength}
	if strings.TrimSpace(content) == "" && len(opts.MediaIDs) == 0 {
		report.Errors = append(report.Errors, "tweet text is empty")
	}
	if n > MaxLength {
		report.Errors = append(report.Errors, fmt.Sprintf("tweet is %d characters, limit is %d", n, MaxLength))
	}
	if len(opts.MediaIDs) > 4 {
		report.Errors = append(report.Errors, "at most 4 media ids can be attached")
	}
	if opts.ImageURL != "" || opts.VideoURL != "" || len(opts.Carousel) > 0 {
		report.Warnings = append(report.Warnings, "media URLs are not uploaded to Twitter; attach pre-uploaded media ids instead")
	}
	if opts.ReplyControl != "" {
		report.Warnings = append(report.Warnings, "reply control is ignored on Twitter")
	}
	report.Valid = len(report.Errors) == 0
	return report
}

func (p *Poster) validate(content string, opts domain.PostOptions) error {
	report := p.ValidateContent(content, opts)
	if !report.Valid {
		return &domain.ValidationError{Platform: domain.PlatformTwitter, Problems: report.Errors}
	}
	return nil
}

func (p *Poster) Post(ctx context.Context, content string, opts domain.PostOptions) (*domain.PostResult, error) {
	if p.bearer == "" && p.oauth1 == nil {
		return nil, fmt.Errorf("twitter: no usable credentials: %w", domain.ErrConfiguration)
	}
	var v2Err error
	if p.bearer != "" {
		res, err := p.postV2(ctx, content, opts)
		if err == nil {
			return res, nil
		}
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		v2Err = err
		if p.oauth1 == nil {
			return nil, err
		}
		p.observer.Observe(ctx, observability.Event{
			Kind:     observability.EventAPIFallback,
			Platform: domain.PlatformTwitter.String(),
			Err:      err,
			Fields:   map[string]any{"from": APIVersionV2, "to": APIVersionV11},
		})
	}
	res, err := p.postV1(ctx, content, opts)
	if err != nil {
		if v2Err != nil {
			return nil, fmt.Errorf("v2: %w; v1.1: %w", v2Err, err)
		}
		return nil, err
	}
	return res, nil
}

type v2TweetRequest struct {
	Text  string        `json:"text"`
	Reply *v2TweetReply `json:"reply,omitempty"`
	Media *v2TweetMedia `json:"media,omitempty"`
}

type v2TweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type v2TweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type v2TweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (p *Poster) postV2(ctx context.Context, content string, opts domain.PostOptions) (*domain.PostResult, error) {
	if err := p.validate(content, opts); err != nil {
		return nil, err
	}
	body := v2TweetRequest{Text: content}
	if opts.ReplyToID != "" {
		body.Reply = &v2TweetReply{InReplyToTweetID: opts.ReplyToID}
	}
	if len(opts.MediaIDs) > 0 {
		body.Media = &v2TweetMedia{MediaIDs: opts.MediaIDs}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode tweet: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+"/2/tweets", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build v2 request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.bearer)
	req.Header.Set("Content-Type", "application/json")

	var out v2TweetResponse
	if err := social.Do(p.client, req, social.Call{Platform: domain.PlatformTwitter, Operation: "create tweet", APIVersion: APIVersionV2}, &out); err != nil {
		return nil, err
	}
	if out.Data.ID == "" {
		return nil, &domain.PlatformAPIError{Platform: domain.PlatformTwitter, Operation: "create tweet", APIVersion: APIVersionV2, StatusCode: http.StatusOK, Body: "response carried no tweet id"}
	}
	return &domain.PostResult{
		Platform:   domain.PlatformTwitter,
		Success:    true,
		PostID:     out.Data.ID,
		URL:        p.statusURL(p.username, out.Data.ID),
		Message:    "Posted to Twitter",
		APIVersion: APIVersionV2,
	}, nil
}

type v1StatusResponse struct {
	IDStr string `json:"id_str"`
	User  struct {
		ScreenName string `json:"screen_name"`
	} `json:"user"`
}

func (p *Poster) postV1(ctx context.Context, content string, opts domain.PostOptions) (*domain.PostResult, error) {
	if err := p.validate(content, opts); err != nil {
		return nil, err
	}
	form := url.Values{"status": {content}}
	if opts.ReplyToID != "" {
		form.Set("in_reply_to_status_id", opts.ReplyToID)
		form.Set("auto_populate_reply_metadata", "true")
	}
	if len(opts.MediaIDs) > 0 {
		form.Set("media_ids", strings.Join(opts.MediaIDs, ","))
	}
	endpoint := p.apiBase + "/1.1/statuses/update.json"
	header, err := p.sign(security.OAuth1Request{Method: http.MethodPost, URL: endpoint, Params: form}, *p.oauth1)
	if err != nil {
		return nil, fmt.Errorf("sign v1.1 request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encodeForm(form)))
	if err != nil {
		return nil, fmt.Errorf("build v1.1 request: %w", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out v1StatusResponse
	if err := social.Do(p.client, req, social.Call{Platform: domain.PlatformTwitter, Operation: "update status", APIVersion: APIVersionV11}, &out); err != nil {
		return nil, err
	}
	if out.IDStr == "" {
		return nil, &domain.PlatformAPIError{Platform: domain.PlatformTwitter, Operation: "update status", APIVersion: APIVersionV11, StatusCode: http.StatusOK, Body: "response carried no status id"}
	}
	username := out.User.ScreenName
	if username == "" {
		username = p.username
	}
	return &domain.PostResult{
		Platform:   domain.PlatformTwitter,
		Success:    true,
		PostID:     out.IDStr,
		URL:        p.statusURL(username, out.IDStr),
		Message:    "Posted to Twitter via v1.1 API",
		APIVersion: APIVersionV11,
	}, nil
}

func (p *Poster) statusURL(username, id string) string {
	if id == "" {
		return ""
	}
	if username == "" {
		return "https://x.com/i/web/status/" + id
	}
	return "https://x.com/" + username + "/status/" + id
}

// encodeForm uses the same RFC 3986 encoding as the signature so the body and
// the signed parameters agree byte for byte.
func encodeForm(form url.Values) string {
	parts := make([]string, 0, len(form))
	for k, vs := range form {
		for _, v := range vs {
			parts = append(parts, security.PercentEncode(k)+"="+security.PercentEncode(v))
		}
	}
	return strings.Join(parts, "&")
}
