package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.TokenTTL != 30*24*time.Hour {
		t.Fatalf("expected 30d token ttl, got %s", cfg.Auth.TokenTTL)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != time.Second {
		t.Fatalf("unexpected retry defaults %+v", cfg.Retry)
	}
	if !cfg.Quota.FailOpen || cfg.Quota.GenerateLimit != 3 {
		t.Fatalf("unexpected quota defaults %+v", cfg.Quota)
	}
	if cfg.Threads.SettleDelay != time.Second {
		t.Fatalf("expected 1s settle delay, got %s", cfg.Threads.SettleDelay)
	}
	if cfg.TwitterOAuth2Enabled() || cfg.ThreadsEnabled() {
		t.Fatal("platforms must be disabled without credentials")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TWITTER_CLIENT_ID", "tw-client")
	t.Setenv("THREADS_APP_ID", "th-app")
	t.Setenv("THREADS_APP_SECRET", "th-secret")
	t.Setenv("QUOTA_GENERATE_LIMIT", "5")
	t.Setenv("RETRY_BASE_DELAY", "250ms")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PUBLIC_BASE_URL", "https://app.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TwitterOAuth2Enabled() || cfg.Twitter.ClientID != "tw-client" {
		t.Fatalf("expected twitter client id from env, got %+v", cfg.Twitter)
	}
	if !cfg.ThreadsEnabled() {
		t.Fatal("expected threads enabled")
	}
	if cfg.Quota.GenerateLimit != 5 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Fatalf("env overrides not applied: quota=%+v retry=%+v", cfg.Quota, cfg.Retry)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spc.yaml")
	content := "http_addr: \":9090\"\nquota:\n  post_limit: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.Quota.PostLimit != 7 {
		t.Fatalf("file values not applied: addr=%q post=%d", cfg.HTTPAddr, cfg.Quota.PostLimit)
	}
}

func TestLoadMissingConfigFileFails(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	if err == nil || classifyConfigLoadError(err) != "file" {
		t.Fatalf("expected file error, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("RETRY_MAX_RETRIES", "0")
	t.Setenv("PUBLIC_BASE_URL", "not-a-url")
	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "validate config:") {
		t.Fatalf("expected validate config prefix, got %q", msg)
	}
	if !strings.Contains(msg, "RETRY_MAX_RETRIES") || !strings.Contains(msg, "PUBLIC_BASE_URL") {
		t.Fatalf("expected every problem reported, got %q", msg)
	}
}

func TestValidateCapsRetryAttempts(t *testing.T) {
	t.Setenv("RETRY_MAX_RETRIES", "11")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "RETRY_MAX_RETRIES must be between 1 and 10") {
		t.Fatalf("expected retry bound error, got %v", err)
	}
}

func TestValidateProductionRequiresStrongJWTSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "short")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got %v", err)
	}
}
