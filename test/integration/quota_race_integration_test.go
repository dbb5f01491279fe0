package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sandeepkv93/social-publishing-core/internal/config"
	"github.com/sandeepkv93/social-publishing-core/internal/domain"
)

func TestConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	h := newHarness(t, nil)
	bearer := h.token(t, "race")

	const workers = 20
	var allowed, refused atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			req, _ := http.NewRequest(http.MethodPost, h.baseURL+"/api/v1/quota/consume", nil)
			req.Header.Set("Authorization", "Bearer "+bearer)
			resp, err := h.client.Do(req)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			_ = resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				allowed.Add(1)
			case http.StatusTooManyRequests:
				if resp.Header.Get("Retry-After") == "" {
					t.Error("expected Retry-After on refusal")
				}
				refused.Add(1)
			default:
				t.Errorf("unexpected status %d", resp.StatusCode)
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed.Load() != 5 || refused.Load() != workers-5 {
		t.Fatalf("expected 5 allowed and %d refused, got %d/%d", workers-5, allowed.Load(), refused.Load())
	}

	resp, env := h.do(t, http.MethodGet, "/api/v1/quota", bearer, nil)
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("check: %d", resp.StatusCode)
	}
	keys := h.redis.Keys()
	found := false
	for _, k := range keys {
		if strings.HasPrefix(k, "spc:usage:user:race:") {
			found = true
			if ttl := h.redis.TTL(k); ttl <= 0 {
				t.Fatalf("expected usage counter %s to expire, ttl=%s", k, ttl)
			}
		}
	}
	if !found {
		t.Fatalf("expected a usage counter for user:race, keys=%v", keys)
	}
}

func TestEmergencyStopBlocksGeneration(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Quota.DailyCostCeiling = 0.01
		cfg.Quota.InputCostPer1K = 0.003
		cfg.Quota.OutputCostPer1K = 0.015
	})
	bearer := h.token(t, "ops")

	resp, env := h.do(t, http.MethodPost, "/api/v1/quota/cost", bearer, strings.NewReader(`{"inputTokens":1000,"outputTokens":1000}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record cost: %d %+v", resp.StatusCode, env.Error)
	}
	var report domain.CostReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode cost: %v", err)
	}
	if !report.EmergencyStop {
		t.Fatalf("expected emergency stop once the ceiling is crossed, got %+v", report)
	}

	resp, env = h.do(t, http.MethodPost, "/api/v1/quota/consume", bearer, nil)
	if resp.StatusCode != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != "SYSTEM_OVERLOADED" {
		t.Fatalf("expected generation blocked, got %d %+v", resp.StatusCode, env.Error)
	}

	resp, env = h.do(t, http.MethodGet, "/api/v1/quota/report", bearer, nil)
	var usage domain.UsageReport
	if err := json.Unmarshal(env.Data, &usage); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("report: %d %v", resp.StatusCode, err)
	}
	if !usage.EmergencyStop || usage.DailyCost < 0.01 {
		t.Fatalf("unexpected report %+v", usage)
	}
}
