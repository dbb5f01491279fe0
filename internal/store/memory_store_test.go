package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestInMemoryStoreExpiryAndTTL(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewInMemoryStore().WithClock(clock.Now)

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl, _ := s.TTL(ctx, "k"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %s", ttl)
	}
	clock.Advance(time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("expected expiry at ttl boundary")
	}
	if ttl, _ := s.TTL(ctx, "k"); ttl != MissingKey {
		t.Fatalf("expected missing sentinel, got %s", ttl)
	}

	_ = s.Set(ctx, "persist", "v", 0)
	if ttl, _ := s.TTL(ctx, "persist"); ttl != NoExpiry {
		t.Fatalf("expected no-expiry sentinel, got %s", ttl)
	}
	if ok, _ := s.Expire(ctx, "absent", time.Minute); ok {
		t.Fatal("expire on absent key must report false")
	}
}

func TestInMemoryStoreIncrIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Incr(ctx, "counter"); err != nil {
				t.Errorf("incr: %v", err)
			}
			if _, err := s.IncrByFloat(ctx, "cost", 0.5); err != nil {
				t.Errorf("incrbyfloat: %v", err)
			}
		}()
	}
	wg.Wait()

	v, _, _ := s.Get(ctx, "counter")
	if v != "50" {
		t.Fatalf("expected 50, got %q", v)
	}
	f, _, _ := s.Get(ctx, "cost")
	if f != "25" {
		t.Fatalf("expected 25, got %q", f)
	}
}

func TestInMemoryStoreIncrPreservesTTL(t *testing.T) {
	ctx := context.Background()
	clock := &manualClock{now: time.Unix(0, 0)}
	s := NewInMemoryStore().WithClock(clock.Now)

	_, _ = s.Incr(ctx, "c")
	_, _ = s.Expire(ctx, "c", time.Hour)
	clock.Advance(10 * time.Minute)
	_, _ = s.Incr(ctx, "c")
	if ttl, _ := s.TTL(ctx, "c"); ttl != 50*time.Minute {
		t.Fatalf("expected incr to keep expiry, got %s", ttl)
	}
}

func TestInMemoryStoreKeysAndDel(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.Set(ctx, "usage:b:2024-01-01", "1", 0)
	_ = s.Set(ctx, "usage:a:2024-01-01", "1", 0)
	_ = s.Set(ctx, "cost:2024-01-01", "1", 0)

	keys, err := s.Keys(ctx, "usage:*:2024-01-01")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "usage:a:2024-01-01" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if n, _ := s.Del(ctx, "usage:a:2024-01-01", "missing"); n != 1 {
		t.Fatalf("expected one deletion, got %d", n)
	}
	_ = s.Set(ctx, "bad", "x", 0)
	if _, err := s.IncrByFloat(ctx, "bad", 1); !errors.Is(err, ErrNotFloat) {
		t.Fatalf("expected ErrNotFloat, got %v", err)
	}
}
