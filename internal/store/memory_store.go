package store

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemoryStore is a single-process Store used by tests and the CLI when no
// Redis address is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

// WithClock replaces the time source, letting tests move past expiries.
func (s *InMemoryStore) WithClock(now func() time.Time) *InMemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *InMemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *InMemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *InMemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.live(key)
	var n int64
	if e.value != "" {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("incr %s: %w", key, ErrNotInteger)
		}
		n = parsed
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	s.entries[key] = e
	return n, nil
}

func (s *InMemoryStore) IncrByFloat(_ context.Context, key string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.live(key)
	var f float64
	if e.value != "" {
		parsed, err := strconv.ParseFloat(e.value, 64)
		if err != nil {
			return 0, fmt.Errorf("incrbyfloat %s: %w", key, ErrNotFloat)
		}
		f = parsed
	}
	f += delta
	e.value = strconv.FormatFloat(f, 'f', -1, 64)
	s.entries[key] = e
	return f, nil
}

func (s *InMemoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return false, nil
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return true, nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.entries[key] = e
	return true, nil
}

func (s *InMemoryStore) Del(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := s.live(k); ok {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok, nil
}

func (s *InMemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0)
	for k := range s.entries {
		if _, ok := s.live(k); !ok {
			continue
		}
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, fmt.Errorf("keys pattern %q: %w", pattern, err)
		}
		if matched {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *InMemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return MissingKey, nil
	}
	if e.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

// live must be called with mu held. Expired entries are evicted lazily.
func (s *InMemoryStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}
