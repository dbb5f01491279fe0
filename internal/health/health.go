package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// ProbeRunner runs every checker concurrently, each bounded by timeout.
type ProbeRunner struct {
	timeout  time.Duration
	checkers []Checker
}

func NewProbeRunner(timeout time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ProbeRunner{timeout: timeout, checkers: checkers}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	results := make([]CheckResult, len(p.checkers))
	var g errgroup.Group
	for i, c := range p.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			start := time.Now()
			res := c.Check(cctx)
			res.LatencyMS = time.Since(start).Milliseconds()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	return ready, results
}

type pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker probes the KV store with PING.
type StoreChecker struct {
	Name  string
	Store pinger
}

func (c StoreChecker) Check(ctx context.Context) CheckResult {
	name := c.Name
	if name == "" {
		name = "kv"
	}
	if err := c.Store.Ping(ctx); err != nil {
		return CheckResult{Name: name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: name, Healthy: true}
}
