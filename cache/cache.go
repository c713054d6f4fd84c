package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMiss is returned by Get when the key is absent or expired.
	ErrMiss = errors.New("cache miss")
	// ErrLockTimeout is returned when a per-key lock cannot be acquired in time.
	ErrLockTimeout = errors.New("cache lock timeout")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("cache unavailable")
)

// KeyValueCache is a TTL-backed byte store. Get also returns the remaining TTL
// so callers can rewrite a value without extending its lifetime.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker serializes work on a single key. The returned release func must be
// called exactly once. ttl bounds how long a crashed holder can block others.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}
