package socialctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/di"
	"github.com/sandeepkv93/social-publishing-core/internal/domain"
	"github.com/sandeepkv93/social-publishing-core/internal/social"
	"github.com/sandeepkv93/social-publishing-core/internal/tools/common"
	"github.com/sandeepkv93/social-publishing-core/internal/tools/loadgen"
	"github.com/sandeepkv93/social-publishing-core/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

type coreOpener func(ctx context.Context, cfg *config.Config) (*di.Core, error)

func NewRootCommand() *cobra.Command {
	return newRootCommand(di.InitializeCore)
}

func newRootCommand(open coreOpener) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "socialctl",
		Short:         "Operate the social publishing core from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before configuration")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	cmd.AddCommand(
		newTokenCommand(opts, open),
		newQuotaCommand(opts, open),
		newConnectionCommand(opts, open),
		newPostCommand(opts, open),
		newLoadCommand(opts),
		newSmokeCommand(opts),
	)
	return cmd
}

// run executes fn behind the spinner, or directly with a JSON result line in
// CI mode.
func run(opts *options, title string, fn func(context.Context) ([]string, error)) error {
	var (
		details []string
		err     error
	)
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		details, err = fn(ctx)
		cancel()
		common.PrintCIResult(err == nil, title, details, err)
	} else {
		details, err = ui.Run(title, fn)
	}
	if err != nil {
		return &ExitError{Code: exitCode(err), Err: err}
	}
	return nil
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingParameters), errors.Is(err, domain.ErrUnsupportedPlatform):
		return 2
	case errors.Is(err, domain.ErrQuotaExceeded), errors.Is(err, domain.ErrSystemOverloaded):
		return 3
	default:
		return 4
	}
}

// withCore loads configuration and the service graph, hands it to fn and
// releases the store afterwards.
func withCore(opts *options, open coreOpener, fn func(context.Context, *di.Core) ([]string, error)) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		if err := common.LoadEnvFile(opts.envFile); err != nil {
			return nil, err
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		core, err := open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer func() { _ = core.Close(context.Background()) }()
		return fn(ctx, core)
	}
}

func asJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func newTokenCommand(opts *options, open coreOpener) *cobra.Command {
	var (
		userID string
		plan   string
		scopes []string
		ttl    time.Duration
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint an API access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "token mint", withCore(opts, open, func(_ context.Context, core *di.Core) ([]string, error) {
				if strings.TrimSpace(userID) == "" {
					return nil, fmt.Errorf("--user: %w", domain.ErrMissingParameters)
				}
				tok, err := core.JWTManager.SignAccessToken(userID, plan, scopes, ttl)
				if err != nil {
					return nil, err
				}
				return []string{tok}, nil
			}))
		},
	}
	mint.Flags().StringVar(&userID, "user", "", "user id placed in the subject claim")
	mint.Flags().StringVar(&plan, "plan", "free", "plan claim")
	mint.Flags().StringSliceVar(&scopes, "scopes", []string{"post", "quota"}, "scopes claim")
	mint.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	cmd := &cobra.Command{Use: "token", Short: "Access token utilities"}
	cmd.AddCommand(mint)
	return cmd
}

func newQuotaCommand(opts *options, open coreOpener) *cobra.Command {
	cmd := &cobra.Command{Use: "quota", Short: "Inspect and adjust the usage ledger"}

	var checkID string
	check := &cobra.Command{
		Use:   "check",
		Short: "Report the remaining generation allowance for an identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "quota check", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				return []string{asJSON(core.Service.CheckQuota(ctx, checkID))}, nil
			}))
		},
	}
	check.Flags().StringVar(&checkID, "id", "", "quota identifier, e.g. user:42 or an IP")

	var consumeID string
	consume := &cobra.Command{
		Use:   "consume",
		Short: "Consume one generation for an identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "quota consume", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				d, err := core.Service.ConsumeGeneration(ctx, consumeID)
				return []string{asJSON(d)}, err
			}))
		},
	}
	consume.Flags().StringVar(&consumeID, "id", "", "quota identifier")

	var date string
	report := &cobra.Command{
		Use:   "report",
		Short: "Summarise usage and cost for a UTC day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "quota report", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				rep, err := core.Service.UsageReport(ctx, date)
				if err != nil {
					return nil, err
				}
				details := []string{
					fmt.Sprintf("date=%s total_requests=%d daily_cost=%.4f emergency_stop=%t", rep.Date, rep.TotalRequests, rep.DailyCost, rep.EmergencyStop),
				}
				for id, n := range rep.Identifiers {
					details = append(details, fmt.Sprintf("%s=%d", id, n))
				}
				return details, nil
			}))
		},
	}
	report.Flags().StringVar(&date, "date", "", "YYYY-MM-DD, defaults to today")

	var usage domain.TokenUsage
	cost := &cobra.Command{
		Use:   "cost",
		Short: "Record model token usage against the daily cost ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "quota cost", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				rep, err := core.Service.RecordGenerationCost(ctx, usage)
				if err != nil {
					return nil, err
				}
				return []string{asJSON(rep)}, nil
			}))
		},
	}
	cost.Flags().Int64Var(&usage.InputTokens, "input", 0, "input tokens")
	cost.Flags().Int64Var(&usage.OutputTokens, "output", 0, "output tokens")

	cmd.AddCommand(check, consume, report, cost)
	return cmd
}

func newConnectionCommand(opts *options, open coreOpener) *cobra.Command {
	cmd := &cobra.Command{Use: "connection", Short: "Inspect linked platform accounts"}

	var statusUser, statusPlatform string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show connection state for one or all platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "connection status", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				platforms, err := parsePlatformList(statusPlatform)
				if err != nil {
					return nil, err
				}
				details := make([]string, 0, len(platforms))
				for _, p := range platforms {
					st, err := core.Service.CheckConnection(ctx, p, statusUser)
					if err != nil {
						details = append(details, fmt.Sprintf("%s: %v", p, err))
						continue
					}
					details = append(details, asJSON(st))
				}
				return details, nil
			}))
		},
	}
	status.Flags().StringVar(&statusUser, "user", "", "user id")
	status.Flags().StringVar(&statusPlatform, "platform", "all", "twitter, threads or all")

	var disconnectUser, disconnectPlatform string
	disconnect := &cobra.Command{
		Use:   "disconnect",
		Short: "Remove stored credentials for a platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "connection disconnect", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				p, err := domain.ParsePlatform(disconnectPlatform)
				if err != nil {
					return nil, err
				}
				removed, err := core.Service.Disconnect(ctx, p, disconnectUser)
				if err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("platform=%s disconnected=%t", p, removed)}, nil
			}))
		},
	}
	disconnect.Flags().StringVar(&disconnectUser, "user", "", "user id")
	disconnect.Flags().StringVar(&disconnectPlatform, "platform", "", "twitter or threads")

	cmd.AddCommand(status, disconnect)
	return cmd
}

func newPostCommand(opts *options, open coreOpener) *cobra.Command {
	var (
		userID     string
		content    string
		platforms  string
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Publish content to linked platforms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "post", withCore(opts, open, func(ctx context.Context, core *di.Core) ([]string, error) {
				targets, err := parsePlatformList(platforms)
				if err != nil {
					return nil, err
				}
				agg, err := core.Service.Post(ctx, userID, social.DispatchRequest{
					Content:    content,
					Platforms:  targets,
					MaxRetries: maxRetries,
				})
				if err != nil {
					return nil, err
				}
				details := []string{fmt.Sprintf("dispatch=%s outcome=%s succeeded=%d failed=%d", agg.DispatchID, agg.Outcome, agg.Succeeded, agg.Failed)}
				for _, r := range agg.Results {
					details = append(details, asJSON(r))
				}
				if agg.Outcome == domain.OutcomeCompleteFailure {
					return details, errors.New("all platforms failed")
				}
				return details, nil
			}))
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id whose linked accounts are used")
	cmd.Flags().StringVar(&content, "content", "", "text to publish")
	cmd.Flags().StringVar(&platforms, "platforms", "all", "comma separated platforms or all")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "lower the configured retry budget")
	return cmd
}

func parsePlatformList(raw string) ([]domain.Platform, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("platforms: %w", domain.ErrMissingParameters)
	}
	if strings.EqualFold(raw, "all") {
		return append([]domain.Platform(nil), domain.AllPlatforms...), nil
	}
	var out []domain.Platform
	for _, part := range strings.Split(raw, ",") {
		p, err := domain.ParsePlatform(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newLoadCommand(opts *options) *cobra.Command {
	cfg := loadgen.Config{}
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Generate paced traffic against a running API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "loadgen", func(ctx context.Context) ([]string, error) {
				res, err := loadgen.Run(ctx, cfg)
				if err != nil {
					return nil, err
				}
				return summarizeLoad(res), nil
			})
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Profile, "profile", "mixed", "health, quota or mixed")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Second, "run length")
	cmd.Flags().IntVar(&cfg.RPS, "rps", 20, "requests per second")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 4, "concurrent workers")
	cmd.Flags().Uint64Var(&cfg.Seed, "seed", 42, "target selection seed")
	cmd.Flags().StringVar(&cfg.BearerToken, "token", "", "bearer token for authenticated routes")
	return cmd
}

func summarizeLoad(res loadgen.Result) []string {
	details := []string{fmt.Sprintf("total=%d failures=%d p50=%s p95=%s", res.TotalRequests, res.Failures, res.P50, res.P95)}
	for class, n := range res.StatusClasses {
		details = append(details, fmt.Sprintf("%s=%d", class, n))
	}
	return details
}

func newSmokeCommand(opts *options) *cobra.Command {
	var baseURL string
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Probe health endpoints and run a short mixed traffic burst",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, "smoke", func(ctx context.Context) ([]string, error) {
				return smoke(ctx, &http.Client{Timeout: 10 * time.Second}, baseURL)
			})
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8080", "API base URL")
	return cmd
}

func smoke(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	base := strings.TrimRight(baseURL, "/")
	var details []string
	for _, path := range []string{"/health/live", "/health/ready"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return details, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return details, fmt.Errorf("%s: %w", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return details, fmt.Errorf("%s returned %s", path, resp.Status)
		}
		details = append(details, fmt.Sprintf("%s: ok request_id=%s", path, resp.Header.Get("X-Request-Id")))
	}

	res, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     base,
		Profile:     "health",
		Duration:    3 * time.Second,
		RPS:         10,
		Concurrency: 2,
		Seed:        42,
		Client:      client,
	})
	if err != nil {
		return details, err
	}
	details = append(details, summarizeLoad(res)...)
	if res.Failures > 0 {
		return details, fmt.Errorf("%d of %d requests failed", res.Failures, res.TotalRequests)
	}
	return details, nil
}
