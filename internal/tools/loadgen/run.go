package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        uint64
	// BearerToken is sent on authenticated routes when set.
	BearerToken string
	Client      *http.Client
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
	P50           time.Duration
	P95           time.Duration
}

type target struct {
	method string
	path   string
	auth   bool
}

var profiles = map[string][]target{
	"health": {
		{method: http.MethodGet, path: "/health/live"},
		{method: http.MethodGet, path: "/health/ready"},
	},
	"quota": {
		{method: http.MethodGet, path: "/api/v1/quota"},
		{method: http.MethodGet, path: "/api/v1/quota/report", auth: true},
	},
	"mixed": {
		{method: http.MethodGet, path: "/health/live"},
		{method: http.MethodGet, path: "/api/v1/quota"},
		{method: http.MethodGet, path: "/api/v1/connections", auth: true},
		{method: http.MethodGet, path: "/api/v1/quota/report", auth: true},
	},
}

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "mixed"
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Run paces requests at cfg.RPS across cfg.Concurrency workers until
// cfg.Duration elapses or ctx is cancelled. Targets are drawn from the
// profile with a seeded generator so runs are repeatable.
func Run(ctx context.Context, cfg Config) (Result, error) {
	profile := normalizeProfile(cfg.Profile)
	targets, ok := profiles[profile]
	if !ok {
		return Result{}, fmt.Errorf("unknown profile %q", cfg.Profile)
	}
	if cfg.BaseURL == "" {
		return Result{}, errors.New("base url is required")
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan target)
	var (
		mu        sync.Mutex
		res       = Result{StatusClasses: map[string]int{}}
		latencies []time.Duration
	)
	record := func(class string, took time.Duration, failed bool) {
		mu.Lock()
		defer mu.Unlock()
		res.TotalRequests++
		res.StatusClasses[class]++
		if failed {
			res.Failures++
		}
		latencies = append(latencies, took)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		defer close(jobs)
		rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				t := targets[rng.IntN(len(targets))]
				select {
				case jobs <- t:
				case <-gctx.Done():
					return nil
				}
			}
		}
	})
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for t := range jobs {
				started := time.Now()
				status, err := send(gctx, client, base, t, cfg.BearerToken)
				took := time.Since(started)
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					record("error", took, true)
					continue
				}
				class := classifyStatusClass(status)
				record(class, took, class == "5xx" || class == "other")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	slices.Sort(latencies)
	res.P50 = percentile(latencies, 0.50)
	res.P95 = percentile(latencies, 0.95)
	return res, nil
}

func send(ctx context.Context, client *http.Client, base string, t target, token string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, t.method, base+t.path, nil)
	if err != nil {
		return 0, err
	}
	if t.auth && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
