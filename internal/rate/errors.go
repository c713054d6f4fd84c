package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is matched by every *LimitedError.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps counter backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitedError reports a throttled identifier and when the window closes.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string { return ErrRateLimited.Error() }

// Is makes errors.Is(err, ErrRateLimited) true.
func (e *LimitedError) Is(target error) bool { return target == ErrRateLimited }
