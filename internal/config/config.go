package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv          string        `mapstructure:"app_env"`
	HTTPAddr        string        `mapstructure:"http_addr"`
	PublicBaseURL   string        `mapstructure:"public_base_url"`
	LogLevel        string        `mapstructure:"log_level"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Twitter   TwitterConfig   `mapstructure:"twitter"`
	Threads   ThreadsConfig   `mapstructure:"threads"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	OTel      OTelConfig      `mapstructure:"otel"`
}

type JWTConfig struct {
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
	Secret   string `mapstructure:"secret"`
}

type RedisConfig struct {
	// Addr is host:port or a redis:// URL. Empty selects the in-memory store.
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TwitterConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	APIBaseURL   string   `mapstructure:"api_base_url"`
	// OAuth1.0a app credentials for the v1.1 fallback and legacy linking.
	ConsumerKey       string `mapstructure:"consumer_key"`
	ConsumerSecret    string `mapstructure:"consumer_secret"`
	AccessToken       string `mapstructure:"access_token"`
	AccessTokenSecret string `mapstructure:"access_token_secret"`
	OAuth1BaseURL     string `mapstructure:"oauth1_base_url"`
}

type ThreadsConfig struct {
	AppID          string        `mapstructure:"app_id"`
	AppSecret      string        `mapstructure:"app_secret"`
	Scopes         []string      `mapstructure:"scopes"`
	AuthURL        string        `mapstructure:"auth_url"`
	TokenURL       string        `mapstructure:"token_url"`
	GraphBaseURL   string        `mapstructure:"graph_base_url"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	StatusPollWait time.Duration `mapstructure:"status_poll_wait"`
	StatusPolls    int           `mapstructure:"status_polls"`
}

type QuotaConfig struct {
	FailOpen         bool    `mapstructure:"fail_open"`
	GenerateLimit    int64   `mapstructure:"generate_limit"`
	PostLimit        int64   `mapstructure:"post_limit"`
	AuthLimit        int64   `mapstructure:"auth_limit"`
	DailyCostCeiling float64 `mapstructure:"daily_cost_ceiling"`
	InputCostPer1K   float64 `mapstructure:"input_cost_per_1k"`
	OutputCostPer1K  float64 `mapstructure:"output_cost_per_1k"`
}

type AuthConfig struct {
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	RefreshSkew    time.Duration `mapstructure:"refresh_skew"`
	CallbackOrigin string        `mapstructure:"callback_origin"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

type RateLimitConfig struct {
	APIPerMinute  int `mapstructure:"api_per_minute"`
	AuthPerMinute int `mapstructure:"auth_per_minute"`
	PostPerMinute int `mapstructure:"post_per_minute"`
}

type OTelConfig struct {
	ServiceName           string        `mapstructure:"service_name"`
	Environment           string        `mapstructure:"environment"`
	ExporterEndpoint      string        `mapstructure:"exporter_endpoint"`
	ExporterInsecure      bool          `mapstructure:"exporter_insecure"`
	MetricsEnabled        bool          `mapstructure:"metrics_enabled"`
	TracingEnabled        bool          `mapstructure:"tracing_enabled"`
	LogsEnabled           bool          `mapstructure:"logs_enabled"`
	MetricsExportInterval time.Duration `mapstructure:"metrics_export_interval"`
	TraceSamplingRatio    float64       `mapstructure:"trace_sampling_ratio"`
	HTTPInstrumentation   bool          `mapstructure:"http_instrumentation"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("shutdown_timeout", 15*time.Second)

	v.SetDefault("jwt.issuer", "social-publishing-core")
	v.SetDefault("jwt.audience", "social-publishing-api")

	v.SetDefault("redis.key_prefix", "")

	v.SetDefault("twitter.scopes", []string{"tweet.read", "tweet.write", "users.read", "offline.access"})
	v.SetDefault("twitter.auth_url", "https://x.com/i/oauth2/authorize")
	v.SetDefault("twitter.token_url", "https://api.twitter.com/2/oauth2/token")
	v.SetDefault("twitter.api_base_url", "https://api.twitter.com")
	v.SetDefault("twitter.oauth1_base_url", "https://api.twitter.com")

	v.SetDefault("threads.scopes", []string{"threads_basic", "threads_content_publish"})
	v.SetDefault("threads.auth_url", "https://threads.net/oauth/authorize")
	v.SetDefault("threads.token_url", "https://graph.threads.net/oauth/access_token")
	v.SetDefault("threads.graph_base_url", "https://graph.threads.net/v1.0")
	v.SetDefault("threads.settle_delay", time.Second)
	v.SetDefault("threads.status_poll_wait", 3*time.Second)
	v.SetDefault("threads.status_polls", 10)

	v.SetDefault("quota.fail_open", true)
	v.SetDefault("quota.generate_limit", 3)
	v.SetDefault("quota.post_limit", 20)
	v.SetDefault("quota.auth_limit", 30)
	v.SetDefault("quota.daily_cost_ceiling", 50.0)
	v.SetDefault("quota.input_cost_per_1k", 0.003)
	v.SetDefault("quota.output_cost_per_1k", 0.015)

	v.SetDefault("auth.session_ttl", 30*time.Minute)
	v.SetDefault("auth.token_ttl", 30*24*time.Hour)
	v.SetDefault("auth.refresh_skew", 5*time.Minute)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Second)

	v.SetDefault("rate_limit.api_per_minute", 120)
	v.SetDefault("rate_limit.auth_per_minute", 30)
	v.SetDefault("rate_limit.post_per_minute", 10)

	v.SetDefault("otel.service_name", "social-publishing-core")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.exporter_endpoint", "localhost:4317")
	v.SetDefault("otel.exporter_insecure", true)
	v.SetDefault("otel.metrics_enabled", false)
	v.SetDefault("otel.tracing_enabled", false)
	v.SetDefault("otel.logs_enabled", false)
	v.SetDefault("otel.metrics_export_interval", 15*time.Second)
	v.SetDefault("otel.trace_sampling_ratio", 1.0)
	v.SetDefault("otel.http_instrumentation", true)
}

// Load reads defaults, an optional file named by CONFIG_FILE, and the
// environment (twitter.client_id <- TWITTER_CLIENT_ID), then validates.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			err = fmt.Errorf("read config file %s: %w", path, err)
			recordLoad(context.Background(), v.GetString("app_env"), nil, err)
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		err = fmt.Errorf("parse config: %w", err)
		recordLoad(context.Background(), v.GetString("app_env"), nil, err)
		return nil, err
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.Twitter.Scopes = splitList(cfg.Twitter.Scopes)
	cfg.Threads.Scopes = splitList(cfg.Threads.Scopes)

	if err := cfg.Validate(); err != nil {
		recordLoad(context.Background(), cfg.AppEnv, nil, err)
		return nil, err
	}
	recordLoad(context.Background(), cfg.AppEnv, cfg, nil)
	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows about; unmarshal needs
// every nested key bound explicitly.
func bindEnv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("config_file", "CONFIG_FILE")
	for _, key := range []string{
		"public_base_url", "jwt.secret", "redis.addr", "redis.password", "redis.db",
		"twitter.client_id", "twitter.client_secret", "twitter.consumer_key", "twitter.consumer_secret",
		"twitter.access_token", "twitter.access_token_secret",
		"threads.app_id", "threads.app_secret", "auth.callback_origin",
	} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) Validate() error {
	var problems []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		problems = append(problems, errors.New("HTTP_ADDR is required"))
	}
	if c.PublicBaseURL != "" {
		if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, errors.New("PUBLIC_BASE_URL must be an absolute URL"))
		}
	}
	if c.IsProduction() && len(c.JWT.Secret) < 32 {
		problems = append(problems, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}
	if c.Auth.SessionTTL <= 0 {
		problems = append(problems, errors.New("AUTH_SESSION_TTL must be positive"))
	}
	if c.Auth.TokenTTL <= 0 {
		problems = append(problems, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.Retry.MaxRetries < 1 || c.Retry.MaxRetries > 10 {
		problems = append(problems, errors.New("RETRY_MAX_RETRIES must be between 1 and 10"))
	}
	if c.Retry.BaseDelay < 0 {
		problems = append(problems, errors.New("RETRY_BASE_DELAY must not be negative"))
	}
	if c.Quota.GenerateLimit < 0 || c.Quota.PostLimit < 0 || c.Quota.AuthLimit < 0 {
		problems = append(problems, errors.New("QUOTA limits must not be negative"))
	}
	if c.Quota.DailyCostCeiling < 0 {
		problems = append(problems, errors.New("QUOTA_DAILY_COST_CEILING must not be negative"))
	}
	if c.Threads.StatusPolls < 0 {
		problems = append(problems, errors.New("THREADS_STATUS_POLLS must not be negative"))
	}
	if c.OTel.TraceSamplingRatio < 0 || c.OTel.TraceSamplingRatio > 1 {
		problems = append(problems, errors.New("OTEL_TRACE_SAMPLING_RATIO must be within [0,1]"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("validate config: %w", errors.Join(problems...))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

func (c *Config) TwitterOAuth2Enabled() bool {
	return c.Twitter.ClientID != ""
}

func (c *Config) TwitterOAuth1Enabled() bool {
	return c.Twitter.ConsumerKey != "" && c.Twitter.ConsumerSecret != ""
}

func (c *Config) ThreadsEnabled() bool {
	return c.Threads.AppID != "" && c.Threads.AppSecret != ""
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
