package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal"
)

// ErrInvalidHash is returned when a presented hash is malformed. Callers
// treat it like ErrHashMismatch.
var ErrInvalidHash = errors.New("session hash malformed")

// Manager creates, rotates and revokes sessions over a [Store].
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager returns a Manager. ttl is the session lifetime, normally the
// refresh token lifetime; it is renewed on every rotation.
func NewManager(store Store, ttl time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		ttl:    ttl,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a new session for userID and returns it with its initial
// hash. Only the digest of the hash is persisted.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, string, error) {
	hash, digest, err := internal.NewSessionHash()
	if err != nil {
		return nil, "", fmt.Errorf("generate session hash: %w", err)
	}

	now := m.now().Unix()
	sess := &Session{
		ID:         m.newID(),
		UserID:     userID,
		HashDigest: digest,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Create(ctx, sess, m.ttl); err != nil {
		return nil, "", err
	}

	return sess, hash, nil
}

// CompareAndRotate accepts presentedHash only if it is the session's
// current hash, and atomically replaces it. The returned hash is the new
// one; the presented hash is never accepted again.
//
// A mismatch does not revoke the session: the legitimate holder of the
// newest hash keeps working while the stale token keeps failing.
func (m *Manager) CompareAndRotate(ctx context.Context, sessionID, presentedHash string) (*Session, string, error) {
	current, err := internal.DigestSessionHash(presentedHash)
	if err != nil {
		return nil, "", ErrInvalidHash
	}

	next, nextDigest, err := internal.NewSessionHash()
	if err != nil {
		return nil, "", fmt.Errorf("generate session hash: %w", err)
	}

	sess, err := m.store.SwapHash(ctx, sessionID, current, nextDigest, m.ttl)
	if err != nil {
		if errors.Is(err, ErrHashMismatch) {
			m.logger.Info("stale session hash presented", zap.String("session_id", sessionID))
		}
		return nil, "", err
	}

	return sess, next, nil
}

// Get returns the session without touching it.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.FindByID(ctx, sessionID)
}

// Revoke deletes one session.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	return m.store.DeleteByID(ctx, sessionID)
}

// RevokeAllForUser deletes every session of userID except exceptSessionID.
// An empty exceptSessionID revokes them all.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, exceptSessionID string) error {
	if exceptSessionID == "" {
		return m.store.DeleteByUserID(ctx, userID)
	}
	return m.store.DeleteByUserIDExcept(ctx, userID, exceptSessionID)
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
