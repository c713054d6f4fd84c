package session

import (
	"context"
	"errors"
	"time"
)

// Session is one login of one user. HashDigest is the SHA-256 of the
// current rotating hash; the hash itself lives only in the refresh token.
type Session struct {
	ID         string
	UserID     string
	HashDigest [32]byte

	CreatedAt int64
	UpdatedAt int64
}

var (
	// ErrNotFound is returned when the session does not exist, expired or
	// was revoked.
	ErrNotFound = errors.New("session not found")
	// ErrHashMismatch is returned by SwapHash when the presented digest is
	// not the session's current one.
	ErrHashMismatch = errors.New("session hash mismatch")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session store unavailable")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

// Store persists sessions. Implementations must make SwapHash an atomic
// compare-and-swap per session id.
type Store interface {
	Create(ctx context.Context, sess *Session, ttl time.Duration) error
	FindByID(ctx context.Context, id string) (*Session, error)
	// SwapHash replaces current with next and returns the updated session.
	// ttl > 0 also renews the session's lifetime.
	SwapHash(ctx context.Context, id string, current, next [32]byte, ttl time.Duration) (*Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID string) error
	DeleteByUserIDExcept(ctx context.Context, userID, exceptID string) error
}
