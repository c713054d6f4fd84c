package flows

import (
	"context"
	"time"
)

// Account is the flow-local view of a user record.
type Account struct {
	ID           string
	Provider     string
	Status       uint8
	PasswordHash string
	RoleID       int
}

// Tokens is the flow-local token pair.
type Tokens struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// IssueDeps opens a session and mints its first token pair. Shared by every
// path that ends in a login.
type IssueDeps struct {
	CreateSession func(ctx context.Context, userID string) (sessionID, hash string, err error)
	Issue         func(userID string, roleID int, sessionID, hash string) (Tokens, error)
	// RevokeSession undoes CreateSession when minting fails.
	RevokeSession func(ctx context.Context, sessionID string) error
}

// IssueFailureKind classifies failures of RunIssue.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureSession
	IssueFailureTokens
)

// IssueResult carries the minted pair or the failure.
type IssueResult struct {
	Failure   IssueFailureKind
	Err       error
	SessionID string
	Tokens    Tokens
}

// RunIssue creates a session for acct and mints its token pair.
func RunIssue(ctx context.Context, acct Account, deps IssueDeps) IssueResult {
	sessionID, hash, err := deps.CreateSession(ctx, acct.ID)
	if err != nil {
		return IssueResult{Failure: IssueFailureSession, Err: err}
	}

	tokens, err := deps.Issue(acct.ID, acct.RoleID, sessionID, hash)
	if err != nil {
		if deps.RevokeSession != nil {
			_ = deps.RevokeSession(ctx, sessionID)
		}
		return IssueResult{Failure: IssueFailureTokens, Err: err, SessionID: sessionID}
	}

	return IssueResult{SessionID: sessionID, Tokens: tokens}
}
