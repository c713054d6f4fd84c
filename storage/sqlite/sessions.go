package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/session"
)

var _ session.Store = (*Sessions)(nil)

// Sessions is the session.Store view of a Store.
type Sessions struct {
	store *Store
}

// Sessions returns the session store backed by s.
func (s *Store) Sessions() *Sessions {
	return &Sessions{store: s}
}

// Create inserts a live session expiring after ttl.
func (s *Sessions) Create(ctx context.Context, sess *session.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session id required")
	}
	expiresAt := toMillis(s.store.now().Add(ttl))
	_, err := s.store.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, hash_digest, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.HashDigest[:], sess.CreatedAt, sess.UpdatedAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

// FindByID returns session.ErrNotFound for unknown, expired and revoked
// sessions alike.
func (s *Sessions) FindByID(ctx context.Context, id string) (*session.Session, error) {
	row := s.store.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, hash_digest, created_at, updated_at FROM sessions WHERE id = ? AND deleted_at IS NULL AND expires_at > ?`,
		id, toMillis(s.store.now()),
	)
	return scanSession(row)
}

// SwapHash is a single conditional UPDATE: it matches only while current
// is the stored digest, so concurrent swaps of one session serialize and
// at most one succeeds.
func (s *Sessions) SwapHash(ctx context.Context, id string, current, next [32]byte, ttl time.Duration) (*session.Session, error) {
	now := s.store.now()
	row := s.store.sqlDB.QueryRowContext(ctx, `
UPDATE sessions
SET hash_digest = ?1,
    updated_at = ?2,
    expires_at = CASE WHEN ?3 > 0 THEN ?4 + ?3 ELSE expires_at END
WHERE id = ?5 AND hash_digest = ?6 AND deleted_at IS NULL AND expires_at > ?4
RETURNING id, user_id, hash_digest, created_at, updated_at`,
		next[:], now.Unix(), ttl.Milliseconds(), toMillis(now), id, current[:],
	)

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	// Nothing matched: tell a stale hash from a missing session.
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, session.ErrHashMismatch
}

// DeleteByID soft-deletes one session. Deleting a missing session is not
// an error.
func (s *Sessions) DeleteByID(ctx context.Context, id string) error {
	_, err := s.store.sqlDB.ExecContext(ctx, `UPDATE sessions SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, toMillis(s.store.now()), id)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

// DeleteByUserID soft-deletes every session of userID.
func (s *Sessions) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := s.store.sqlDB.ExecContext(ctx, `UPDATE sessions SET deleted_at = ? WHERE user_id = ? AND deleted_at IS NULL`, toMillis(s.store.now()), userID)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

// DeleteByUserIDExcept soft-deletes every session of userID but exceptID.
// Unlike the Redis store this is a single statement, so sessions created
// concurrently are covered too.
func (s *Sessions) DeleteByUserIDExcept(ctx context.Context, userID, exceptID string) error {
	_, err := s.store.sqlDB.ExecContext(ctx, `UPDATE sessions SET deleted_at = ? WHERE user_id = ? AND id <> ? AND deleted_at IS NULL`, toMillis(s.store.now()), userID, exceptID)
	if err != nil {
		return fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired hard-deletes rows revoked or expired before cutoff and
// returns how many went.
func (s *Sessions) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.store.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?1 OR (deleted_at IS NOT NULL AND deleted_at <= ?1)`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*session.Session, error) {
	var (
		sess   session.Session
		digest []byte
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &digest, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", session.ErrUnavailable, err)
	}
	if len(digest) != len(sess.HashDigest) {
		return nil, session.ErrCorrupt
	}
	copy(sess.HashDigest[:], digest)
	return &sess, nil
}
