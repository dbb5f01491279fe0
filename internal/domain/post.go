package domain

type MediaType string

const (
	MediaText     MediaType = "TEXT"
	MediaImage    MediaType = "IMAGE"
	MediaVideo    MediaType = "VIDEO"
	MediaCarousel MediaType = "CAROUSEL"
)

type CarouselItem struct {
	Type MediaType `json:"type"`
	URL  string    `json:"url"`
}

// PostOptions carries the optional per-post parameters. Adapters ignore the
// fields their platform does not support.
type PostOptions struct {
	ImageURL     string         `json:"imageUrl,omitempty"`
	VideoURL     string         `json:"videoUrl,omitempty"`
	Carousel     []CarouselItem `json:"carousel,omitempty"`
	ReplyToID    string         `json:"replyToId,omitempty"`
	MediaIDs     []string       `json:"mediaIds,omitempty"`
	ReplyControl string         `json:"replyControl,omitempty"`
}

// Merge returns o with every non-empty field of override applied.
func (o PostOptions) Merge(override *PostOptions) PostOptions {
	if override == nil {
		return o
	}
	out := o
	if override.ImageURL != "" {
		out.ImageURL = override.ImageURL
	}
	if override.VideoURL != "" {
		out.VideoURL = override.VideoURL
	}
	if len(override.Carousel) > 0 {
		out.Carousel = override.Carousel
	}
	if override.ReplyToID != "" {
		out.ReplyToID = override.ReplyToID
	}
	if len(override.MediaIDs) > 0 {
		out.MediaIDs = override.MediaIDs
	}
	if override.ReplyControl != "" {
		out.ReplyControl = override.ReplyControl
	}
	return out
}

type PostResult struct {
	Platform    Platform `json:"platform"`
	Success     bool     `json:"success"`
	PostID      string   `json:"postId,omitempty"`
	ContainerID string   `json:"containerId,omitempty"`
	URL         string   `json:"url,omitempty"`
	Message     string   `json:"message"`
	Attempts    int      `json:"attempts"`
	APIVersion  string   `json:"apiVersion,omitempty"`
}

type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Length   int      `json:"length"`
	Limit    int      `json:"limit"`
}

type Outcome string

const (
	OutcomeCompleteSuccess Outcome = "complete_success"
	OutcomePartialSuccess  Outcome = "partial_success"
	OutcomeCompleteFailure Outcome = "complete_failure"
)

type PlatformOutcome struct {
	Platform Platform    `json:"platform"`
	Success  bool        `json:"success"`
	Result   *PostResult `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
	Code     string      `json:"code,omitempty"`
	Attempts int         `json:"attempts"`
}

type AggregateResult struct {
	DispatchID string            `json:"dispatchId"`
	Outcome    Outcome           `json:"outcome"`
	Results    []PlatformOutcome `json:"results"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
}

// Summarize fills the counters and outcome from Results.
func (a *AggregateResult) Summarize() {
	a.Succeeded, a.Failed = 0, 0
	for _, r := range a.Results {
		if r.Success {
			a.Succeeded++
		} else {
			a.Failed++
		}
	}
	switch {
	case a.Failed == 0 && a.Succeeded > 0:
		a.Outcome = OutcomeCompleteSuccess
	case a.Succeeded > 0:
		a.Outcome = OutcomePartialSuccess
	default:
		a.Outcome = OutcomeCompleteFailure
	}
}
