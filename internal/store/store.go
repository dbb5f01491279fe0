package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotInteger is returned when INCR touches a value that is not an integer.
var ErrNotInteger = errors.New("value is not an integer")

// ErrNotFloat is returned when INCRBYFLOAT touches a value that is not a number.
var ErrNotFloat = errors.New("value is not a valid float")

// Store is the key-value surface every component talks to. Counters are only
// mutated through Incr and IncrByFloat so concurrent writers never lose updates.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	// TTL reports the remaining lifetime. A negative duration means the key
	// has no expiry (-1) or does not exist (-2), mirroring Redis.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
}

const (
	NoExpiry   time.Duration = -1
	MissingKey time.Duration = -2
)
