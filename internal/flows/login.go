package flows

import (
	"context"
	"time"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureRateBackend
	LoginFailureLookup
	LoginFailureUserNotFound
	LoginFailureProviderMismatch
	LoginFailureNoPassword
	LoginFailureBadPassword
	LoginFailureHashBackend
	LoginFailureStatus
	LoginFailureSession
	LoginFailureTokens
)

// PasswordLoginRequest is one password login attempt for a provider.
type PasswordLoginRequest struct {
	Identifier string
	Password   string
	Provider   string
	// StatusAllowed gates the account status after the password matched.
	StatusAllowed func(status uint8) bool
}

// LoginDeps captures password login dependencies.
type LoginDeps struct {
	Lookup         func(ctx context.Context, identifier string) (Account, bool, error)
	VerifyPassword func(hash, password string) (bool, error)

	// Throttle hooks; nil disables throttling. CheckRate returns the
	// remaining window when the identifier is over budget.
	CheckRate     func(ctx context.Context, identifier string) (limited bool, retryAfter time.Duration, err error)
	IncrementRate func(ctx context.Context, identifier string) error
	ResetRate     func(ctx context.Context, identifier string) error

	Issue IssueDeps
}

// LoginResult carries the issued pair or failure metadata.
type LoginResult struct {
	Failure    LoginFailureKind
	Err        error
	Account    Account
	SessionID  string
	Tokens     Tokens
	RetryAfter time.Duration
}

// RunPasswordLogin runs the shared shape of the email and phone password
// logins: throttle, lookup, provider match, password, status, session.
func RunPasswordLogin(ctx context.Context, req PasswordLoginRequest, deps LoginDeps) LoginResult {
	if deps.CheckRate != nil {
		limited, retryAfter, err := deps.CheckRate(ctx, req.Identifier)
		if err != nil {
			return LoginResult{Failure: LoginFailureRateBackend, Err: err}
		}
		if limited {
			return LoginResult{Failure: LoginFailureRateLimited, RetryAfter: retryAfter}
		}
	}

	acct, found, err := deps.Lookup(ctx, req.Identifier)
	if err != nil {
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}
	if !found {
		recordFailure(ctx, req.Identifier, deps)
		return LoginResult{Failure: LoginFailureUserNotFound}
	}

	if acct.Provider != req.Provider {
		return LoginResult{Failure: LoginFailureProviderMismatch, Account: acct}
	}
	if acct.PasswordHash == "" {
		recordFailure(ctx, req.Identifier, deps)
		return LoginResult{Failure: LoginFailureNoPassword, Account: acct}
	}

	ok, err := deps.VerifyPassword(acct.PasswordHash, req.Password)
	if err != nil {
		return LoginResult{Failure: LoginFailureHashBackend, Err: err, Account: acct}
	}
	if !ok {
		recordFailure(ctx, req.Identifier, deps)
		return LoginResult{Failure: LoginFailureBadPassword, Account: acct}
	}

	if req.StatusAllowed != nil && !req.StatusAllowed(acct.Status) {
		return LoginResult{Failure: LoginFailureStatus, Account: acct}
	}

	if deps.ResetRate != nil {
		_ = deps.ResetRate(ctx, req.Identifier)
	}

	return finishLogin(ctx, acct, deps.Issue)
}

// RunAccountLogin logs in an account that was already authenticated by
// other means (OTP, OAuth, registration).
func RunAccountLogin(ctx context.Context, acct Account, statusAllowed func(uint8) bool, deps IssueDeps) LoginResult {
	if statusAllowed != nil && !statusAllowed(acct.Status) {
		return LoginResult{Failure: LoginFailureStatus, Account: acct}
	}
	return finishLogin(ctx, acct, deps)
}

func finishLogin(ctx context.Context, acct Account, deps IssueDeps) LoginResult {
	issued := RunIssue(ctx, acct, deps)
	switch issued.Failure {
	case IssueFailureSession:
		return LoginResult{Failure: LoginFailureSession, Err: issued.Err, Account: acct}
	case IssueFailureTokens:
		return LoginResult{Failure: LoginFailureTokens, Err: issued.Err, Account: acct}
	}

	return LoginResult{
		Account:   acct,
		SessionID: issued.SessionID,
		Tokens:    issued.Tokens,
	}
}

func recordFailure(ctx context.Context, identifier string, deps LoginDeps) {
	if deps.IncrementRate != nil {
		_ = deps.IncrementRate(ctx, identifier)
	}
}
