package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLockLua = redis.NewScript(releaseLockScript)

const lockPollInterval = 10 * time.Millisecond

// Redis is a KeyValueCache and Locker on top of a go-redis client.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis cache. prefix is prepended to every key; empty
// means keys are used verbatim.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get returns the value and remaining TTL of key.
//
//	Performance: 1 pipelined round-trip (GET + PTTL).
func (r *Redis) Get(ctx context.Context, key string) ([]byte, time.Duration, error) {
	k := r.key(key)
	pipe := r.redis.Pipeline()
	getCmd := pipe.Get(ctx, k)
	ttlCmd := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	data, err := getCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrMiss
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ttl, err := ttlCmd.Result()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl < 0 {
		// -1: no expiry set; -2 cannot happen after a successful GET.
		ttl = 0
	}

	return data, ttl, nil
}

// Set stores value with ttl. A non-positive ttl is rejected: cache entries
// in this package always expire.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("cache ttl must be positive")
	}
	if err := r.redis.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Lock acquires "lock:<key>" with SET NX PX, polling until ctx is done.
// Release only deletes the lock if it still holds this caller's token.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lockKey := r.key("lock:" + key)
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := r.redis.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrLockTimeout
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if ok {
			return func() {
				// Detached context: the caller's ctx may already be cancelled.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseLockLua.Run(releaseCtx, r.redis, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}
