package flows

import "context"

// PasswordFailureKind classifies password change and reset failures.
type PasswordFailureKind int

const (
	PasswordFailureNone PasswordFailureKind = iota
	PasswordFailureLookup
	PasswordFailureUserNotFound
	PasswordFailureInvalidOld
	PasswordFailureHashBackend
	PasswordFailurePolicy
	PasswordFailureUpdate
	PasswordFailureRevoke
)

// PasswordDeps captures password mutation dependencies.
type PasswordDeps struct {
	Lookup         func(ctx context.Context, userID string) (Account, bool, error)
	VerifyPassword func(hash, password string) (bool, error)
	HashPassword   func(password string) (string, error)
	// IsPolicyError picks out HashPassword errors that reject the password
	// itself rather than signal a hashing fault.
	IsPolicyError func(error) bool
	SetPassword   func(ctx context.Context, userID, hash string) error
	RevokeAll     func(ctx context.Context, userID, exceptSessionID string) error
}

// PasswordResult reports the outcome of a password flow.
type PasswordResult struct {
	Failure PasswordFailureKind
	Err     error
	Account Account
}

// ChangePasswordRequest is an authenticated password change.
type ChangePasswordRequest struct {
	UserID      string
	SessionID   string
	OldPassword string
	NewPassword string
}

// RunChangePassword re-verifies the current password, replaces it and
// revokes every other session of the user.
func RunChangePassword(ctx context.Context, req ChangePasswordRequest, deps PasswordDeps) PasswordResult {
	acct, found, err := deps.Lookup(ctx, req.UserID)
	if err != nil {
		return PasswordResult{Failure: PasswordFailureLookup, Err: err}
	}
	if !found {
		return PasswordResult{Failure: PasswordFailureUserNotFound}
	}
	if acct.PasswordHash == "" {
		return PasswordResult{Failure: PasswordFailureInvalidOld, Account: acct}
	}

	ok, err := deps.VerifyPassword(acct.PasswordHash, req.OldPassword)
	if err != nil {
		return PasswordResult{Failure: PasswordFailureHashBackend, Err: err, Account: acct}
	}
	if !ok {
		return PasswordResult{Failure: PasswordFailureInvalidOld, Account: acct}
	}

	return replacePassword(ctx, acct, req.NewPassword, req.SessionID, deps)
}

// RunResetPassword replaces the password of an already-authorized user
// (action token or OTP) and revokes all of their sessions.
func RunResetPassword(ctx context.Context, userID, newPassword string, deps PasswordDeps) PasswordResult {
	acct, found, err := deps.Lookup(ctx, userID)
	if err != nil {
		return PasswordResult{Failure: PasswordFailureLookup, Err: err}
	}
	if !found {
		return PasswordResult{Failure: PasswordFailureUserNotFound}
	}
	return replacePassword(ctx, acct, newPassword, "", deps)
}

func replacePassword(ctx context.Context, acct Account, newPassword, keepSessionID string, deps PasswordDeps) PasswordResult {
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		if deps.IsPolicyError != nil && deps.IsPolicyError(err) {
			return PasswordResult{Failure: PasswordFailurePolicy, Err: err, Account: acct}
		}
		return PasswordResult{Failure: PasswordFailureHashBackend, Err: err, Account: acct}
	}

	if err := deps.SetPassword(ctx, acct.ID, hash); err != nil {
		return PasswordResult{Failure: PasswordFailureUpdate, Err: err, Account: acct}
	}

	if err := deps.RevokeAll(ctx, acct.ID, keepSessionID); err != nil {
		return PasswordResult{Failure: PasswordFailureRevoke, Err: err, Account: acct}
	}

	return PasswordResult{Account: acct}
}
