package flows

import (
	"context"
	"errors"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureSessionNotFound
	RefreshFailureReuse
	RefreshFailureRotate
	RefreshFailureUserLookup
	RefreshFailureUserGone
	RefreshFailureAccountStatus
	RefreshFailureIssue
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SessionID string
	UserID    string
	Tokens    Tokens
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ValidateRefresh func(token string) (sessionID, hash string, err error)
	// LoadSession returns the owner of a session without changing it.
	LoadSession func(ctx context.Context, sessionID string) (userID string, err error)
	// Rotate is the session manager's compare-and-rotate.
	Rotate        func(ctx context.Context, sessionID, hash string) (nextHash string, err error)
	Lookup        func(ctx context.Context, userID string) (Account, bool, error)
	StatusAllowed func(status uint8) bool
	RevokeSession func(ctx context.Context, sessionID string) error
	Issue         func(userID string, roleID int, sessionID, hash string) (Tokens, error)

	// Errors returned by LoadSession or Rotate that classify the failure.
	HashMismatch    []error
	SessionNotFound error
}

// RunRefresh validates a refresh token, checks the session owner, rotates
// the session hash and issues a new pair. Exactly one of N concurrent calls
// with the same token wins.
//
// The hash is rotated only after the owner lookup succeeds, so a directory
// failure leaves the presented token usable.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	sessionID, hash, err := deps.ValidateRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	userID, err := deps.LoadSession(ctx, sessionID)
	if err != nil {
		return classifySessionErr(err, sessionID, deps)
	}

	acct, found, err := deps.Lookup(ctx, userID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, SessionID: sessionID, UserID: userID}
	}
	if !found {
		_ = deps.RevokeSession(ctx, sessionID)
		return RefreshResult{Failure: RefreshFailureUserGone, SessionID: sessionID, UserID: userID}
	}
	if deps.StatusAllowed != nil && !deps.StatusAllowed(acct.Status) {
		_ = deps.RevokeSession(ctx, sessionID)
		return RefreshResult{Failure: RefreshFailureAccountStatus, SessionID: sessionID, UserID: userID}
	}

	nextHash, err := deps.Rotate(ctx, sessionID, hash)
	if err != nil {
		res := classifySessionErr(err, sessionID, deps)
		res.UserID = userID
		return res
	}

	tokens, err := deps.Issue(acct.ID, acct.RoleID, sessionID, nextHash)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, UserID: userID}
	}

	return RefreshResult{SessionID: sessionID, UserID: userID, Tokens: tokens}
}

func classifySessionErr(err error, sessionID string, deps RefreshDeps) RefreshResult {
	for _, target := range deps.HashMismatch {
		if errors.Is(err, target) {
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID}
		}
	}
	if deps.SessionNotFound != nil && errors.Is(err, deps.SessionNotFound) {
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID}
	}
	return RefreshResult{Failure: RefreshFailureRotate, Err: err, SessionID: sessionID}
}
