package flows

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errMismatch = errors.New("mismatch")
	errNotFound = errors.New("not found")
)

type issueRecorder struct {
	created []string
	revoked []string
	failIss bool
}

func (r *issueRecorder) deps() IssueDeps {
	return IssueDeps{
		CreateSession: func(ctx context.Context, userID string) (string, string, error) {
			r.created = append(r.created, userID)
			return "sid-" + userID, "hash", nil
		},
		Issue: func(userID string, roleID int, sessionID, hash string) (Tokens, error) {
			if r.failIss {
				return Tokens{}, errors.New("sign failed")
			}
			return Tokens{AccessToken: "a:" + sessionID, RefreshToken: "r:" + hash}, nil
		},
		RevokeSession: func(ctx context.Context, sessionID string) error {
			r.revoked = append(r.revoked, sessionID)
			return nil
		},
	}
}

func loginDeps(acct *Account, rec *issueRecorder) LoginDeps {
	return LoginDeps{
		Lookup: func(ctx context.Context, identifier string) (Account, bool, error) {
			if acct == nil {
				return Account{}, false, nil
			}
			return *acct, true, nil
		},
		VerifyPassword: func(hash, password string) (bool, error) {
			return hash == "h:"+password, nil
		},
		Issue: rec.deps(),
	}
}

func TestPasswordLoginClassification(t *testing.T) {
	active := func(s uint8) bool { return s == 0 }
	acct := &Account{ID: "u1", Provider: "email", PasswordHash: "h:secret"}

	cases := []struct {
		name     string
		acct     *Account
		req      PasswordLoginRequest
		expected LoginFailureKind
	}{
		{"ok", acct, PasswordLoginRequest{Password: "secret", Provider: "email", StatusAllowed: active}, LoginFailureNone},
		{"missing", nil, PasswordLoginRequest{Password: "secret", Provider: "email"}, LoginFailureUserNotFound},
		{"provider", acct, PasswordLoginRequest{Password: "secret", Provider: "phone"}, LoginFailureProviderMismatch},
		{"bad password", acct, PasswordLoginRequest{Password: "nope", Provider: "email"}, LoginFailureBadPassword},
		{"no password", &Account{ID: "u2", Provider: "email"}, PasswordLoginRequest{Password: "x", Provider: "email"}, LoginFailureNoPassword},
		{"status", &Account{ID: "u3", Provider: "email", PasswordHash: "h:secret", Status: 2}, PasswordLoginRequest{Password: "secret", Provider: "email", StatusAllowed: active}, LoginFailureStatus},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &issueRecorder{}
			res := RunPasswordLogin(context.Background(), tc.req, loginDeps(tc.acct, rec))
			if res.Failure != tc.expected {
				t.Fatalf("expected failure %d, got %d", tc.expected, res.Failure)
			}
			if tc.expected == LoginFailureNone {
				if res.SessionID == "" || res.Tokens.AccessToken == "" {
					t.Fatalf("expected issued session, got %+v", res)
				}
			} else if len(rec.created) != 0 {
				t.Fatalf("no session expected on failure, created %v", rec.created)
			}
		})
	}
}

func TestPasswordLoginRateLimit(t *testing.T) {
	acct := &Account{ID: "u1", Provider: "email", PasswordHash: "h:secret"}
	rec := &issueRecorder{}
	deps := loginDeps(acct, rec)

	failures := 0
	resets := 0
	deps.CheckRate = func(ctx context.Context, identifier string) (bool, time.Duration, error) {
		return failures >= 2, 30 * time.Second, nil
	}
	deps.IncrementRate = func(ctx context.Context, identifier string) error {
		failures++
		return nil
	}
	deps.ResetRate = func(ctx context.Context, identifier string) error {
		resets++
		return nil
	}

	req := PasswordLoginRequest{Identifier: "a@b.c", Password: "wrong", Provider: "email"}
	for i := 0; i < 2; i++ {
		if res := RunPasswordLogin(context.Background(), req, deps); res.Failure != LoginFailureBadPassword {
			t.Fatalf("attempt %d: expected bad password, got %d", i, res.Failure)
		}
	}

	req.Password = "secret"
	res := RunPasswordLogin(context.Background(), req, deps)
	if res.Failure != LoginFailureRateLimited {
		t.Fatalf("expected rate limited, got %d", res.Failure)
	}
	if res.RetryAfter != 30*time.Second {
		t.Fatalf("expected retry after 30s, got %v", res.RetryAfter)
	}
	if resets != 0 {
		t.Fatalf("limited attempt must not reset the counter")
	}
}

func TestIssueFailureRevokesSession(t *testing.T) {
	rec := &issueRecorder{failIss: true}
	res := RunAccountLogin(context.Background(), Account{ID: "u1"}, nil, rec.deps())
	if res.Failure != LoginFailureTokens {
		t.Fatalf("expected token failure, got %d", res.Failure)
	}
	if len(rec.revoked) != 1 || rec.revoked[0] != "sid-u1" {
		t.Fatalf("expected orphan session revoked, got %v", rec.revoked)
	}
}

func refreshDeps(rotateErr error, acct *Account, revoked *[]string) RefreshDeps {
	return RefreshDeps{
		ValidateRefresh: func(token string) (string, string, error) {
			if token == "garbage" {
				return "", "", errors.New("malformed")
			}
			return "sid", "hash", nil
		},
		LoadSession: func(ctx context.Context, sessionID string) (string, error) {
			if errors.Is(rotateErr, errNotFound) {
				return "", rotateErr
			}
			return "u1", nil
		},
		Rotate: func(ctx context.Context, sessionID, hash string) (string, error) {
			if rotateErr != nil {
				return "", rotateErr
			}
			return "next", nil
		},
		Lookup: func(ctx context.Context, userID string) (Account, bool, error) {
			if acct == nil {
				return Account{}, false, nil
			}
			return *acct, true, nil
		},
		StatusAllowed: func(s uint8) bool { return s != 2 },
		RevokeSession: func(ctx context.Context, sessionID string) error {
			*revoked = append(*revoked, sessionID)
			return nil
		},
		Issue: func(userID string, roleID int, sessionID, hash string) (Tokens, error) {
			return Tokens{RefreshToken: sessionID + ":" + hash}, nil
		},
		HashMismatch:    []error{errMismatch},
		SessionNotFound: errNotFound,
	}
}

func TestRefreshClassification(t *testing.T) {
	cases := []struct {
		name      string
		token     string
		rotateErr error
		acct      *Account
		expected  RefreshFailureKind
		revoked   bool
	}{
		{"ok", "t", nil, &Account{ID: "u1"}, RefreshFailureNone, false},
		{"decode", "garbage", nil, &Account{ID: "u1"}, RefreshFailureDecode, false},
		{"reuse", "t", errMismatch, &Account{ID: "u1"}, RefreshFailureReuse, false},
		{"wrapped reuse", "t", errors.Join(errors.New("ctx"), errMismatch), &Account{ID: "u1"}, RefreshFailureReuse, false},
		{"missing", "t", errNotFound, &Account{ID: "u1"}, RefreshFailureSessionNotFound, false},
		{"backend", "t", errors.New("redis down"), &Account{ID: "u1"}, RefreshFailureRotate, false},
		{"user gone", "t", nil, nil, RefreshFailureUserGone, true},
		{"blocked", "t", nil, &Account{ID: "u1", Status: 2}, RefreshFailureAccountStatus, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var revoked []string
			res := RunRefresh(context.Background(), tc.token, refreshDeps(tc.rotateErr, tc.acct, &revoked))
			if res.Failure != tc.expected {
				t.Fatalf("expected failure %d, got %d", tc.expected, res.Failure)
			}
			if tc.revoked != (len(revoked) == 1) {
				t.Fatalf("revoked=%v, want revoke %v", revoked, tc.revoked)
			}
			if tc.expected == RefreshFailureNone && res.Tokens.RefreshToken != "sid:next" {
				t.Fatalf("expected pair bound to rotated hash, got %q", res.Tokens.RefreshToken)
			}
		})
	}
}

func TestRefreshLookupFailureKeepsHash(t *testing.T) {
	var revoked []string
	deps := refreshDeps(nil, &Account{ID: "u1"}, &revoked)

	rotated := 0
	rotate := deps.Rotate
	deps.Rotate = func(ctx context.Context, sessionID, hash string) (string, error) {
		rotated++
		return rotate(ctx, sessionID, hash)
	}
	lookup := deps.Lookup
	lookupErr := errors.New("directory unavailable")
	deps.Lookup = func(ctx context.Context, userID string) (Account, bool, error) {
		if lookupErr != nil {
			return Account{}, false, lookupErr
		}
		return lookup(ctx, userID)
	}

	res := RunRefresh(context.Background(), "t", deps)
	if res.Failure != RefreshFailureUserLookup {
		t.Fatalf("expected lookup failure, got %d", res.Failure)
	}
	if rotated != 0 || len(revoked) != 0 {
		t.Fatalf("lookup failure must not touch the session: rotated=%d revoked=%v", rotated, revoked)
	}

	lookupErr = nil
	res = RunRefresh(context.Background(), "t", deps)
	if res.Failure != RefreshFailureNone || rotated != 1 {
		t.Fatalf("retry should rotate once, got failure %d rotated %d", res.Failure, rotated)
	}
}

func TestRefreshBlockedUserSkipsRotation(t *testing.T) {
	var revoked []string
	deps := refreshDeps(nil, &Account{ID: "u1", Status: 2}, &revoked)
	deps.Rotate = func(ctx context.Context, sessionID, hash string) (string, error) {
		t.Fatalf("rotate must not run for a blocked user")
		return "", nil
	}

	res := RunRefresh(context.Background(), "t", deps)
	if res.Failure != RefreshFailureAccountStatus || len(revoked) != 1 {
		t.Fatalf("expected status failure with revoke, got %d %v", res.Failure, revoked)
	}
}

func passwordDeps(acct *Account, revokedExcept *string, stored *string) PasswordDeps {
	return PasswordDeps{
		Lookup: func(ctx context.Context, userID string) (Account, bool, error) {
			if acct == nil {
				return Account{}, false, nil
			}
			return *acct, true, nil
		},
		VerifyPassword: func(hash, password string) (bool, error) { return hash == "h:"+password, nil },
		HashPassword: func(password string) (string, error) {
			if len(password) < 4 {
				return "", errPolicy
			}
			return "h:" + password, nil
		},
		IsPolicyError: func(err error) bool { return errors.Is(err, errPolicy) },
		SetPassword: func(ctx context.Context, userID, hash string) error {
			*stored = hash
			return nil
		},
		RevokeAll: func(ctx context.Context, userID, except string) error {
			*revokedExcept = except
			return nil
		},
	}
}

var errPolicy = errors.New("too short")

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	acct := &Account{ID: "u1", PasswordHash: "h:old"}
	var except, stored string
	deps := passwordDeps(acct, &except, &stored)

	res := RunChangePassword(context.Background(), ChangePasswordRequest{UserID: "u1", SessionID: "keep", OldPassword: "wrong", NewPassword: "newpass"}, deps)
	if res.Failure != PasswordFailureInvalidOld {
		t.Fatalf("expected invalid old password, got %d", res.Failure)
	}
	if stored != "" {
		t.Fatalf("password must not change on failure")
	}

	res = RunChangePassword(context.Background(), ChangePasswordRequest{UserID: "u1", SessionID: "keep", OldPassword: "old", NewPassword: "abc"}, deps)
	if res.Failure != PasswordFailurePolicy {
		t.Fatalf("expected policy failure, got %d", res.Failure)
	}

	res = RunChangePassword(context.Background(), ChangePasswordRequest{UserID: "u1", SessionID: "keep", OldPassword: "old", NewPassword: "newpass"}, deps)
	if res.Failure != PasswordFailureNone {
		t.Fatalf("expected success, got %d", res.Failure)
	}
	if stored != "h:newpass" || except != "keep" {
		t.Fatalf("stored=%q except=%q", stored, except)
	}
}

func TestResetPasswordRevokesEverySession(t *testing.T) {
	except, stored := "unset", ""
	res := RunResetPassword(context.Background(), "u1", "newpass", passwordDeps(&Account{ID: "u1"}, &except, &stored))
	if res.Failure != PasswordFailureNone {
		t.Fatalf("expected success, got %d", res.Failure)
	}
	if except != "" {
		t.Fatalf("reset must revoke every session, kept %q", except)
	}

	res = RunResetPassword(context.Background(), "ghost", "newpass", passwordDeps(nil, &except, &stored))
	if res.Failure != PasswordFailureUserNotFound {
		t.Fatalf("expected user not found, got %d", res.Failure)
	}
}

func TestLogoutByAccessToken(t *testing.T) {
	var revoked []string
	deps := LogoutDeps{
		ValidateAccess: func(token string) (string, string, error) {
			if token != "good" {
				return "", "", errors.New("bad token")
			}
			return "u1", "sid-1", nil
		},
		RevokeSession: func(ctx context.Context, sessionID string) error {
			revoked = append(revoked, sessionID)
			return nil
		},
	}

	if res := RunLogoutByAccessToken(context.Background(), "bad", deps); !res.Invalid {
		t.Fatalf("expected invalid token result")
	}
	res := RunLogoutByAccessToken(context.Background(), "good", deps)
	if res.Invalid || res.Err != nil || res.SessionID != "sid-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(revoked) != 1 {
		t.Fatalf("expected one revoke, got %v", revoked)
	}
}
