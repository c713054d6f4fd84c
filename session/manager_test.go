package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) (*Manager, *RedisStore) {
	t.Helper()
	store, _, done := newSessionStoreTest(t)
	t.Cleanup(done)
	return NewManager(store, 24*time.Hour), store
}

func TestManagerCreateStoresDigestOnly(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	sess, hash, err := m.Create(ctx, "u-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.ID == "" || hash == "" {
		t.Fatalf("expected id and hash, got %q %q", sess.ID, hash)
	}

	stored, err := store.FindByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.UserID != "u-1" || stored.HashDigest != sess.HashDigest {
		t.Fatalf("unexpected stored session %+v", stored)
	}
}

func TestManagerStaleHashNeverAcceptedAgain(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sess, h1, _ := m.Create(ctx, "u-1")

	rotated, h2, err := m.CompareAndRotate(ctx, sess.ID, h1)
	if err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	if h2 == h1 || rotated.UserID != "u-1" {
		t.Fatalf("expected new hash for u-1, got %q user=%q", h2, rotated.UserID)
	}

	if _, _, err := m.CompareAndRotate(ctx, sess.ID, h1); !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("replay of stale hash should fail with ErrHashMismatch, got %v", err)
	}

	// The legitimate holder is unaffected by the replay attempt.
	if _, h3, err := m.CompareAndRotate(ctx, sess.ID, h2); err != nil || h3 == h2 {
		t.Fatalf("current hash should rotate, got h3=%q err=%v", h3, err)
	}
}

func TestManagerRejectsMalformedHash(t *testing.T) {
	m, _ := newTestManager(t)
	sess, _, _ := m.Create(context.Background(), "u-1")
	if _, _, err := m.CompareAndRotate(context.Background(), sess.ID, "not-hex"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
}

func TestManagerRevokeAllExcept(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	keep, _, _ := m.Create(ctx, "u-1")
	drop, dropHash, _ := m.Create(ctx, "u-1")

	if err := m.RevokeAllForUser(ctx, "u-1", keep.ID); err != nil {
		t.Fatalf("revoke all except: %v", err)
	}
	if _, err := m.Get(ctx, keep.ID); err != nil {
		t.Fatalf("kept session missing: %v", err)
	}
	if _, _, err := m.CompareAndRotate(ctx, drop.ID, dropHash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("refresh on revoked session should fail with ErrNotFound, got %v", err)
	}

	if err := m.Revoke(ctx, keep.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := m.Get(ctx, keep.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
