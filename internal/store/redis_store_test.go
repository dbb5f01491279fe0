package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return server, client
}

func TestRedisStoreGetSetAndExpiry(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	s := NewRedisStore(client, "spc")

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "oauth_pkce:abc", `{"a":1}`, 30*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !server.Exists("spc:oauth_pkce:abc") {
		t.Fatal("expected key to be stored under prefix")
	}
	val, ok, err := s.Get(ctx, "oauth_pkce:abc")
	if err != nil || !ok || val != `{"a":1}` {
		t.Fatalf("unexpected get val=%q ok=%v err=%v", val, ok, err)
	}

	ttl, err := s.TTL(ctx, "oauth_pkce:abc")
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 29*time.Minute || ttl > 30*time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}

	server.FastForward(31 * time.Minute)
	if _, ok, _ := s.Get(ctx, "oauth_pkce:abc"); ok {
		t.Fatal("expected key to expire")
	}
}

func TestRedisStoreCountersAndTTLSentinels(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	s := NewRedisStore(client, "")

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "usage:1.2.3.4:2024-01-01")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("incr=%d want %d", n, i)
		}
	}
	ttl, err := s.TTL(ctx, "usage:1.2.3.4:2024-01-01")
	if err != nil || ttl != NoExpiry {
		t.Fatalf("expected no-expiry sentinel, got %s err=%v", ttl, err)
	}
	ok, err := s.Expire(ctx, "usage:1.2.3.4:2024-01-01", 24*time.Hour)
	if err != nil || !ok {
		t.Fatalf("expire ok=%v err=%v", ok, err)
	}
	ttl, _ = s.TTL(ctx, "nope")
	if ttl != MissingKey {
		t.Fatalf("expected missing sentinel, got %s", ttl)
	}

	f, err := s.IncrByFloat(ctx, "cost:2024-01-01", 0.25)
	if err != nil {
		t.Fatalf("incrbyfloat: %v", err)
	}
	f, _ = s.IncrByFloat(ctx, "cost:2024-01-01", 0.5)
	if f != 0.75 {
		t.Fatalf("expected 0.75, got %v", f)
	}

	if err := s.Set(ctx, "text", "abc", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := s.Incr(ctx, "text"); !errors.Is(err, ErrNotInteger) {
		t.Fatalf("expected ErrNotInteger, got %v", err)
	}
}

func TestRedisStoreKeysStripsPrefixAndDel(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	s := NewRedisStore(client, "spc:")

	_ = s.Set(ctx, "usage:a:2024-01-01", "1", time.Hour)
	_ = s.Set(ctx, "usage:b:2024-01-01", "2", time.Hour)
	_ = s.Set(ctx, "usage:a:2024-01-02", "3", time.Hour)

	keys, err := s.Keys(ctx, "usage:*:2024-01-01")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	for _, k := range keys {
		if k != "usage:a:2024-01-01" && k != "usage:b:2024-01-01" {
			t.Fatalf("unexpected key %q", k)
		}
	}

	n, err := s.Del(ctx, "usage:a:2024-01-01", "usage:zzz")
	if err != nil || n != 1 {
		t.Fatalf("del n=%d err=%v", n, err)
	}
	exists, _ := s.Exists(ctx, "usage:a:2024-01-01")
	if exists {
		t.Fatal("expected key deleted")
	}
}

func TestRedisStoreBackendDownReturnsError(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	s := NewRedisStore(client, "")
	server.Close()

	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Fatal("expected error when backend is down")
	}
	if err := s.Ping(ctx); err == nil {
		t.Fatal("expected ping error when backend is down")
	}
}

func TestConnectAcceptsURLAndAddress(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	c1, err := Connect(ctx, server.Addr(), "", 0)
	if err != nil {
		t.Fatalf("connect addr: %v", err)
	}
	_ = c1.Close()

	c2, err := Connect(ctx, "redis://"+server.Addr()+"/0", "", 0)
	if err != nil {
		t.Fatalf("connect url: %v", err)
	}
	_ = c2.Close()

	if _, err := Connect(ctx, "redis://%zz", "", 0); err == nil {
		t.Fatal("expected parse error")
	}
}
