package threads

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"

	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
)

const (
	MaxLength         = 500
	MinCarouselItems  = 2
	MaxCarouselItems  = 10
	APIVersion        = "v1.0"
	statusInProgress  = "IN_PROGRESS"
	statusFinished    = "FINISHED"
	statusPublished   = "PUBLISHED"
	statusError       = "ERROR"
	statusExpired     = "EXPIRED"
	defaultPollWait   = 3 * time.Second
	defaultMaxPolls   = 10
	defaultSettleTime = time.Second
)

// Poster publishes through the two-step container flow: create a media
// container, let it settle, then publish it by creation id. A retried post
// creates a fresh container; abandoned containers expire on their own.
type Poster struct {
	client      *http.Client
	graphBase   string
	accessToken string
	userID      string
	username    string
	settleDelay time.Duration
	pollWait    time.Duration
	maxPolls    int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type PosterOptions struct {
	Client      *http.Client
	GraphBase   string
	AccessToken string
	UserID      string
	Username    string
	SettleDelay time.Duration
	PollWait    time.Duration
	MaxPolls    int
	Sleep       func(ctx context.Context, d time.Duration) error
	Logger      *slog.Logger
}

func NewPoster(opts PosterOptions) *Poster {
	if opts.Client == nil {
		opts.Client = social.NewHTTPClient(0)
	}
	if opts.GraphBase == "" {
		opts.GraphBase = "https://graph.threads.net/v1.0"
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleTime
	}
	if opts.PollWait <= 0 {
		opts.PollWait = defaultPollWait
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = defaultMaxPolls
	}
	if opts.Sleep == nil {
		opts.Sleep = social.SleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poster{
		client:      opts.Client,
		graphBase:   strings.TrimRight(opts.GraphBase, "/"),
		accessToken: opts.AccessToken,
		userID:      opts.UserID,
		username:    opts.Username,
		settleDelay: opts.SettleDelay,
		pollWait:    opts.PollWait,
		maxPolls:    opts.MaxPolls,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
}

func (p *Poster) Platform() domain.Platform { return domain.PlatformThreads }

// MediaTypeFor picks the container type. Carousel wins over video, video
// over image.
func MediaTypeFor(opts domain.PostOptions) domain.MediaType {
	switch {
	case len(opts.Carousel) > 0:
		return domain.MediaCarousel
	case opts.VideoURL != "":
		return domain.MediaVideo
	case opts.ImageURL != "":
		return domain.MediaImage
	default:
		return domain.MediaText
	}
}

func (p *Poster) ValidateContent(content string, opts domain.PostOptions) domain.ValidationReport {
	n := social.RuneLength(content)
	report := domain.ValidationReport{Length: n, Limit: MaxLength}
	mediaType := MediaTypeFor(opts)

	if n > MaxLength {
		report.Errors = append(report.Errors, fmt.Sprintf("post is %d characters, limit is %d", n, MaxLength))
	}
	if mediaType == domain.MediaText && strings.TrimSpace(content) == "" {
		report.Errors = append(report.Errors, "text post is empty")
	}
	if opts.ImageURL != "" && !social.IsHTTPURL(opts.ImageURL) {
		report.Errors = append(report.Errors, "image URL must be an absolute http(s) URL")
	}
	if opts.VideoURL != "" && !social.IsHTTPURL(opts.VideoURL) {
		report.Errors = append(report.Errors, "video URL must be an absolute http(s) URL")
	}
	if mediaType == domain.MediaCarousel {
		if len(opts.Carousel) < MinCarouselItems || len(opts.Carousel) > MaxCarouselItems {
			report.Errors = append(report.Errors, fmt.Sprintf("carousel needs %d to %d items, got %d", MinCarouselItems, MaxCarouselItems, len(opts.Carousel)))
		}
		for i, item := range opts.Carousel {
			if item.Type != domain.MediaImage && item.Type != domain.MediaVideo {
				report.Errors = append(report.Errors, fmt.Sprintf("carousel item %d has unsupported type %q", i+1, item.Type))
			}
			if !social.IsHTTPURL(item.URL) {
				report.Errors = append(report.Errors, fmt.Sprintf("carousel item %d URL must be an absolute http(s) URL", i+1))
			}
		}
	}
	mediaKinds := 0
	for _, set := range []bool{opts.ImageURL != "", opts.VideoURL != "", len(opts.Carousel) > 0} {
		if set {
			mediaKinds++
		}
	}
	if mediaKinds > 1 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("several media kinds given, posting as %s", mediaType))
	}
	if len(opts.MediaIDs) > 0 {
		report.Warnings = append(report.Warnings, "media ids are ignored on Threads")
	}
	report.Valid = len(report.Errors) == 0
	return report
}

type containerParams struct {
	MediaType      domain.MediaType `url:"media_type"`
	Text           string           `url:"text,omitempty"`
	ImageURL       string           `url:"image_url,omitempty"`
	VideoURL       string           `url:"video_url,omitempty"`
	IsCarouselItem bool             `url:"is_carousel_item,omitempty"`
	Children       string           `url:"children,omitempty"`
	ReplyToID      string           `url:"reply_to_id,omitempty"`
	ReplyControl   string           `url:"reply_control,omitempty"`
	AccessToken    string           `url:"access_token"`
}

type publishParams struct {
	CreationID  string `url:"creation_id"`
	AccessToken string `url:"access_token"`
}

type fieldsParams struct {
	Fields      string `url:"fields"`
	AccessToken string `url:"access_token"`
}

type idResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type permalinkResponse struct {
	Permalink string `json:"permalink"`
}

func (p *Poster) Post(ctx context.Context, content string, opts domain.PostOptions) (*domain.PostResult, error) {
	report := p.ValidateContent(content, opts)
	if !report.Valid {
		return nil, &domain.ValidationError{Platform: domain.PlatformThreads, Problems: report.Errors}
	}
	if p.accessToken == "" || p.userID == "" {
		return nil, fmt.Errorf("threads: %w", domain.ErrNotConnected)
	}

	mediaType := MediaTypeFor(opts)
	params := containerParams{
		MediaType:    mediaType,
		Text:         content,
		ReplyToID:    opts.ReplyToID,
		ReplyControl: opts.ReplyControl,
		AccessToken:  p.accessToken,
	}
	switch mediaType {
	case domain.MediaImage:
		params.ImageURL = opts.ImageURL
	case domain.MediaVideo:
		params.VideoURL = opts.VideoURL
	case domain.MediaCarousel:
		children, err := p.createChildren(ctx, opts.Carousel)
		if err != nil {
			return nil, err
		}
		params.Children = strings.Join(children, ",")
	}

	containerID, err := p.createContainer(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := p.settle(ctx, containerID, mediaType); err != nil {
		return nil, err
	}

	var published idResponse
	if err := p.post(ctx, "/"+p.userID+"/threads_publish", publishParams{CreationID: containerID, AccessToken: p.accessToken}, "publish", &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, &domain.PlatformAPIError{Platform: domain.PlatformThreads, Operation: "publish", APIVersion: APIVersion, StatusCode: http.StatusOK, Body: "response carried no post id"}
	}

	return &domain.PostResult{
		Platform:    domain.PlatformThreads,
		Success:     true,
		PostID:      published.ID,
		ContainerID: containerID,
		URL:         p.permalink(ctx, published.ID),
		Message:     "Posted to Threads",
		APIVersion:  APIVersion,
	}, nil
}

func (p *Poster) createChildren(ctx context.Context, items []domain.CarouselItem) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		params := containerParams{
			MediaType:      item.Type,
			IsCarouselItem: true,
			AccessToken:    p.accessToken,
		}
		if item.Type == domain.MediaVideo {
			params.VideoURL = item.URL
		} else {
			params.ImageURL = item.URL
		}
		id, err := p.createContainer(ctx, params)
		if err != nil {
			return nil, err
		}
		if item.Type == domain.MediaVideo {
			if err := p.waitReady(ctx, id); err != nil {
				return nil, err
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Poster) createContainer(ctx context.Context, params containerParams) (string, error) {
	var out idResponse
	if err := p.post(ctx, "/"+p.userID+"/threads", params, "create container", &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &domain.PlatformAPIError{Platform: domain.PlatformThreads, Operation: "create container", APIVersion: APIVersion, StatusCode: http.StatusOK, Body: "response carried no container id"}
	}
	return out.ID, nil
}

// settle waits the fixed delay, then for video and carousel containers polls
// until processing has left IN_PROGRESS.
func (p *Poster) settle(ctx context.Context, containerID string, mediaType domain.MediaType) error {
	if err := p.sleep(ctx, p.settleDelay); err != nil {
		return err
	}
	if mediaType != domain.MediaVideo && mediaType != domain.MediaCarousel {
		return nil
	}
	return p.waitReady(ctx, containerID)
}

func (p *Poster) waitReady(ctx context.Context, containerID string) error {
	for poll := 1; poll <= p.maxPolls; poll++ {
		var st statusResponse
		if err := p.get(ctx, "/"+containerID, fieldsParams{Fields: "status,error_message", AccessToken: p.accessToken}, "container status", &st); err != nil {
			return err
		}
		switch st.Status {
		case statusFinished, statusPublished, "":
			return nil
		case statusError, statusExpired:
			return &domain.PlatformAPIError{
				Platform:   domain.PlatformThreads,
				Operation:  "container status",
				APIVersion: APIVersion,
				StatusCode: http.StatusOK,
				Body:       fmt.Sprintf("container %s is %s: %s", containerID, st.Status, st.ErrorMessage),
			}
		}
		if poll == p.maxPolls {
			break
		}
		if err := p.sleep(ctx, p.pollWait); err != nil {
			return err
		}
	}
	return &domain.PlatformAPIError{
		Platform:   domain.PlatformThreads,
		Operation:  "container status",
		APIVersion: APIVersion,
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("container %s still %s after %d polls", containerID, statusInProgress, p.maxPolls),
	}
}

// permalink is best effort; a failure leaves the URL empty.
func (p *Poster) permalink(ctx context.Context, postID string) string {
	var out permalinkResponse
	if err := p.get(ctx, "/"+postID, fieldsParams{Fields: "permalink", AccessToken: p.accessToken}, "permalink", &out); err != nil {
		p.logger.DebugContext(ctx, "threads permalink lookup failed", "post_id", postID, "error", err.Error())
		if p.username != "" {
			return "https://www.threads.net/@" + p.username
		}
		return ""
	}
	return out.Permalink
}

func (p *Poster) post(ctx context.Context, path string, params any, op string, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.graphBase+path, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return social.Do(p.client, req, social.Call{Platform: domain.PlatformThreads, Operation: op, APIVersion: APIVersion}, out)
}

func (p *Poster) get(ctx context.Context, path string, params any, op string, out any) error {
	values, err := query.Values(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.graphBase+path+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	return social.Do(p.client, req, social.Call{Platform: domain.PlatformThreads, Operation: op, APIVersion: APIVersion}, out)
}
