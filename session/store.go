package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	swapStatusNotFound    int64 = 0
	swapStatusMismatch    int64 = 1
	swapStatusSwapped     int64 = 2
	swapStatusInvalidBlob int64 = 3
)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// KEYS[1] session key
// ARGV[1] presented digest, ARGV[2] next digest, ARGV[3] updatedAt (8 bytes BE),
// ARGV[4] ttl in milliseconds (<= 0 keeps the current PTTL)
const swapHashScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

if #data < 50 or string.byte(data, 1) ~= 1 then
  return {3}
end

if string.sub(data, 2, 33) ~= ARGV[1] then
  return {1}
end

local ttl = tonumber(ARGV[4])
if ttl <= 0 then
  ttl = redis.call("PTTL", KEYS[1])
end

local updated = string.sub(data, 1, 1) .. ARGV[2] .. string.sub(data, 34, 41) .. ARGV[3] .. string.sub(data, 50)

if ttl > 0 then
  redis.call("SET", KEYS[1], updated, "PX", ttl)
else
  redis.call("SET", KEYS[1], updated, "KEEPTTL")
end

return {2, updated}
`

var swapHashLua = redis.NewScript(swapHashScript)

// RedisStore is a Redis-backed [Store]. Sessions live under
// "{prefix}:s:{id}" with the session TTL; each user has an index set
// "{prefix}:u:{userID}" used for bulk revocation.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a session store backed by the given Redis client.
// An empty prefix defaults to "as".
func NewRedisStore(redis redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisStore{
		redis:  redis,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Create persists sess with the given TTL and indexes it under its user.
//
//	Performance: 1 MULTI/EXEC (SET + SADD).
func (s *RedisStore) Create(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session id required")
	}
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.ID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// FindByID loads a session.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) FindByID(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = id
	return sess, nil
}

// SwapHash atomically replaces the session's hash digest when current
// matches. A mismatch leaves the session untouched.
//
//	Performance: 1 Lua EVALSHA (atomic compare-and-swap).
//	Security: CAS guarantees at most one of N concurrent refreshes presenting
//	the same hash succeeds.
func (s *RedisStore) SwapHash(ctx context.Context, id string, current, next [32]byte, ttl time.Duration) (*Session, error) {
	result, err := swapHashLua.Run(
		ctx,
		s.redis,
		[]string{s.key(id)},
		current[:],
		next[:],
		encodeUnix(s.now().Unix()),
		ttl.Milliseconds(),
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid swap script response", ErrUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid swap script status", ErrUnavailable)
	}

	switch code {
	case swapStatusNotFound:
		return nil, ErrNotFound
	case swapStatusMismatch:
		return nil, ErrHashMismatch
	case swapStatusInvalidBlob:
		return nil, ErrCorrupt
	case swapStatusSwapped:
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: missing updated session payload", ErrUnavailable)
		}

		var blob []byte
		switch v := parts[1].(type) {
		case string:
			blob = []byte(v)
		case []byte:
			blob = v
		default:
			return nil, fmt.Errorf("%w: invalid updated session payload", ErrUnavailable)
		}

		sess, decErr := Decode(blob)
		if decErr != nil {
			return nil, decErr
		}
		sess.ID = id
		return sess, nil
	default:
		return nil, fmt.Errorf("%w: unknown swap script status", ErrUnavailable)
	}
}

// DeleteByID removes a session and its index entry. Deleting a missing
// session is not an error.
//
//	Performance: 1 GET + 1 Lua EVALSHA.
func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	sess, err := s.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if errors.Is(err, ErrCorrupt) {
			// Unreadable record: drop the key, the index entry is pruned on
			// the next bulk revocation.
			if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return nil
		}
		return err
	}

	_, err = deleteSessionLua.Run(ctx, s.redis, []string{s.key(id), s.userKey(sess.UserID)}, id).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteByUserID removes every session of userID.
//
// ATOMICITY NOTE: the index is read with SMEMBERS before the MULTI that
// deletes. A session created in between survives this call.
func (s *RedisStore) DeleteByUserID(ctx context.Context, userID string) error {
	return s.deleteForUser(ctx, userID, "")
}

// DeleteByUserIDExcept removes every session of userID other than exceptID.
// Same atomicity caveat as DeleteByUserID.
func (s *RedisStore) DeleteByUserIDExcept(ctx context.Context, userID, exceptID string) error {
	return s.deleteForUser(ctx, userID, exceptID)
}

func (s *RedisStore) deleteForUser(ctx context.Context, userID, exceptID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	keys := make([]string, 0, len(sessionIDs))
	members := make([]interface{}, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if id == exceptID {
			continue
		}
		keys = append(keys, s.key(id))
		members = append(members, id)
	}
	if len(keys) == 0 {
		return nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		if exceptID == "" {
			pipe.Del(ctx, userKey)
		} else {
			pipe.SRem(ctx, userKey, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns the indexed session ids of userID. The index
// may briefly contain ids whose session has already expired.
func (s *RedisStore) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}
