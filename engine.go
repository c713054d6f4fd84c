package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/actiontoken"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Engine is the auth core: per-provider login, registration, token
// refresh and the password and email lifecycles. Build it with New().
// An Engine is safe for concurrent use.
type Engine struct {
	config   Config
	users    UserDirectory
	sessions *session.Manager
	tokens   *TokenIssuer
	actions  *actiontoken.Codec
	otp      *otp.Engine
	hasher   *password.Hasher
	limiter  *rate.Limiter
	mail     MailDispatcher
	oauth    OAuthProvider
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time
}

// MetricsSnapshot returns the current metric values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Sessions exposes the session manager for transports that need direct
// revocation.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// fail logs an infrastructure failure and returns the generic internal
// error carrying the cause.
func (e *Engine) fail(op string, err error, fields ...zap.Field) *Error {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	e.logger.Error("authcore operation failed", fields...)
	return internalError(err)
}

// ---- status gates ----

// Email logins accept unconfirmed accounts; phone logins do not.
func emailLoginStatus(s uint8) bool {
	return Status(s) == StatusActive || Status(s) == StatusInactive
}

func activeOnly(s uint8) bool {
	return Status(s) == StatusActive
}

func notBlocked(s uint8) bool {
	return Status(s) == StatusActive || Status(s) == StatusInactive
}

// ---- directory adapters ----

func toAccount(u *User) flows.Account {
	return flows.Account{
		ID:           u.ID,
		Provider:     string(u.Provider),
		Status:       uint8(u.Status),
		PasswordHash: u.PasswordHash,
		RoleID:       u.RoleID,
	}
}

// find adapts a directory lookup to the (value, found, err) shape.
func find(ctx context.Context, lookup func(context.Context, string) (*User, error), key string) (*User, bool, error) {
	u, err := lookup(ctx, key)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if u == nil {
		return nil, false, nil
	}
	return u, true, nil
}

func accountLookup(lookup func(context.Context, string) (*User, error)) func(context.Context, string) (flows.Account, bool, error) {
	return func(ctx context.Context, key string) (flows.Account, bool, error) {
		u, ok, err := find(ctx, lookup, key)
		if err != nil || !ok {
			return flows.Account{}, ok, err
		}
		return toAccount(u), true, nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// ---- flow dependency sets ----

func (e *Engine) issueDeps() flows.IssueDeps {
	return flows.IssueDeps{
		CreateSession: func(ctx context.Context, userID string) (string, string, error) {
			sess, hash, err := e.sessions.Create(ctx, userID)
			if err != nil {
				return "", "", err
			}
			e.metricInc(MetricSessionCreated)
			return sess.ID, hash, nil
		},
		Issue:         e.issueTokens,
		RevokeSession: e.sessions.Revoke,
	}
}

func (e *Engine) issueTokens(userID string, roleID int, sessionID, hash string) (flows.Tokens, error) {
	pair, err := e.tokens.Issue(userID, roleID, sessionID, hash)
	if err != nil {
		return flows.Tokens{}, err
	}
	return flows.Tokens{
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	}, nil
}

func (e *Engine) loginDeps(lookup func(context.Context, string) (*User, error)) flows.LoginDeps {
	deps := flows.LoginDeps{
		Lookup:         accountLookup(lookup),
		VerifyPassword: e.hasher.Verify,
		Issue:          e.issueDeps(),
	}
	if e.limiter.Enabled() {
		deps.CheckRate = func(ctx context.Context, identifier string) (bool, time.Duration, error) {
			err := e.limiter.CheckLogin(ctx, identifier)
			var limited *rate.LimitedError
			if errors.As(err, &limited) {
				return true, limited.RetryAfter, nil
			}
			return false, 0, err
		}
		deps.IncrementRate = e.limiter.IncrementLogin
		deps.ResetRate = e.limiter.ResetLogin
	}
	return deps
}

func (e *Engine) passwordDeps() flows.PasswordDeps {
	return flows.PasswordDeps{
		Lookup:         accountLookup(e.users.FindByID),
		VerifyPassword: e.hasher.Verify,
		HashPassword:   e.hasher.Hash,
		IsPolicyError: func(err error) bool {
			return errors.Is(err, password.ErrTooShort)
		},
		SetPassword: func(ctx context.Context, userID, hash string) error {
			_, err := e.users.Update(ctx, userID, UserUpdate{PasswordHash: &hash})
			return err
		},
		RevokeAll: e.sessions.RevokeAllForUser,
	}
}

// loginResult turns a successful flow result into the public shape,
// reloading the user so the caller sees the stored record.
func (e *Engine) loginResult(u *User, res flows.LoginResult) *LoginResult {
	e.metricInc(MetricLoginSuccess)
	return &LoginResult{
		TokenPair: TokenPair{
			AccessToken:     res.Tokens.AccessToken,
			RefreshToken:    res.Tokens.RefreshToken,
			AccessExpiresAt: res.Tokens.AccessExpiresAt,
		},
		User: u,
	}
}

// loginError maps a failed login. notFound and badCredential are the
// provider-specific codes.
func (e *Engine) loginError(op, field string, res flows.LoginResult, notFound, badCredential *Error) error {
	e.metricInc(MetricLoginFailure)

	switch res.Failure {
	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		return rateLimited(field, ceilSeconds(res.RetryAfter))
	case flows.LoginFailureUserNotFound:
		return notFound
	case flows.LoginFailureProviderMismatch:
		return needLoginVia(Provider(res.Account.Provider))
	case flows.LoginFailureNoPassword, flows.LoginFailureBadPassword:
		return badCredential
	case flows.LoginFailureStatus:
		return ErrUserNotActive
	default:
		return e.fail(op, res.Err, zap.String("user_id", res.Account.ID))
	}
}

// passwordError maps a failed password flow.
func (e *Engine) passwordError(op string, res flows.PasswordResult) error {
	switch res.Failure {
	case flows.PasswordFailureUserNotFound:
		return ErrNotFound
	case flows.PasswordFailureInvalidOld:
		return ErrIncorrectOldPassword
	case flows.PasswordFailurePolicy:
		return &Error{Kind: ErrPasswordPolicy.Kind, Field: ErrPasswordPolicy.Field, Code: ErrPasswordPolicy.Code, Err: res.Err}
	default:
		return e.fail(op, res.Err, zap.String("user_id", res.Account.ID))
	}
}

func (e *Engine) hashPassword(pw string) (string, error) {
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return "", &Error{Kind: ErrPasswordPolicy.Kind, Field: ErrPasswordPolicy.Field, Code: ErrPasswordPolicy.Code, Err: err}
		}
		return "", e.fail("hash_password", err)
	}
	return hash, nil
}

func (e *Engine) sendMail(ctx context.Context, op, to, template string, data map[string]string) error {
	if e.mail == nil {
		return ErrFeatureUnavailable
	}
	if err := e.mail.Send(ctx, to, template, data); err != nil {
		return e.fail(op, err, zap.String("template", template))
	}
	return nil
}

// actionTokenError maps codec failures.
func actionTokenError(err error) error {
	switch {
	case errors.Is(err, actiontoken.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return &Error{Kind: ErrInvalidHash.Kind, Field: ErrInvalidHash.Field, Code: ErrInvalidHash.Code, Err: err}
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
