package authcore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/session"
)

// Refresh exchanges a refresh token for a new pair and rotates the session
// hash. A refresh token is accepted at most once; every failure is the
// same detail-free unauthorized error.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrUnauthorized
	}

	res := flows.RunRefresh(ctx, refreshToken, flows.RefreshDeps{
		ValidateRefresh: e.tokens.ValidateRefresh,
		LoadSession: func(ctx context.Context, sessionID string) (string, error) {
			sess, err := e.sessions.Get(ctx, sessionID)
			if err != nil {
				return "", err
			}
			return sess.UserID, nil
		},
		Rotate: func(ctx context.Context, sessionID, hash string) (string, error) {
			_, next, err := e.sessions.CompareAndRotate(ctx, sessionID, hash)
			return next, err
		},
		Lookup:          accountLookup(e.users.FindByID),
		StatusAllowed:   notBlocked,
		RevokeSession:   e.sessions.Revoke,
		Issue:           e.issueTokens,
		HashMismatch:    []error{session.ErrHashMismatch},
		SessionNotFound: session.ErrNotFound,
	})

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		return &TokenPair{
			AccessToken:     res.Tokens.AccessToken,
			RefreshToken:    res.Tokens.RefreshToken,
			AccessExpiresAt: res.Tokens.AccessExpiresAt,
		}, nil
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.logger.Warn("refresh token reuse", zap.String("session_id", res.SessionID))
	case flows.RefreshFailureUserGone, flows.RefreshFailureAccountStatus:
		e.metricInc(MetricSessionInvalidated)
	case flows.RefreshFailureDecode, flows.RefreshFailureSessionNotFound:
	case flows.RefreshFailureRotate:
		if !errors.Is(res.Err, session.ErrInvalidHash) {
			e.metricInc(MetricRefreshFailure)
			return nil, e.fail("refresh_rotate", res.Err, zap.String("session_id", res.SessionID))
		}
	default:
		e.metricInc(MetricRefreshFailure)
		return nil, e.fail("refresh", res.Err, zap.String("session_id", res.SessionID), zap.String("user_id", res.UserID))
	}

	e.metricInc(MetricRefreshFailure)
	return nil, unauthorized(res.Err)
}

func (e *Engine) logoutDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		ValidateAccess: func(token string) (string, string, error) {
			p, err := e.tokens.ValidateAccess(token)
			return p.UserID, p.SessionID, err
		},
		RevokeSession: e.sessions.Revoke,
		RevokeAll:     e.sessions.RevokeAllForUser,
	}
}

// Logout revokes one session. Revoking an unknown session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := flows.RunLogout(ctx, sessionID, e.logoutDeps()); err != nil {
		return e.fail("logout", err, zap.String("session_id", sessionID))
	}
	e.metricInc(MetricLogout)
	return nil
}

// LogoutAll revokes every session of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	if err := flows.RunLogoutAll(ctx, userID, e.logoutDeps()); err != nil {
		return e.fail("logout_all", err, zap.String("user_id", userID))
	}
	e.metricInc(MetricLogoutAll)
	return nil
}

// LogoutByAccessToken revokes the session an access token is bound to.
func (e *Engine) LogoutByAccessToken(ctx context.Context, accessToken string) error {
	res := flows.RunLogoutByAccessToken(ctx, accessToken, e.logoutDeps())
	if res.Invalid {
		return unauthorized(res.Err)
	}
	if res.Err != nil {
		return e.fail("logout_by_access", res.Err, zap.String("session_id", res.SessionID))
	}
	e.metricInc(MetricLogout)
	return nil
}

// ValidateAccess verifies an access token. With Session.StrictAccess the
// session must also still exist, so logout takes effect immediately.
//
// Performance: without StrictAccess this is a signature check only and
// touches no store.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (Principal, error) {
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	p, err := e.tokens.ValidateAccess(accessToken)
	if err != nil {
		return Principal{}, unauthorized(err)
	}
	if !e.config.Session.StrictAccess {
		return p, nil
	}

	sess, err := e.sessions.Get(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupt) {
			return Principal{}, unauthorized(err)
		}
		return Principal{}, e.fail("validate_access", err, zap.String("session_id", p.SessionID))
	}
	if sess.UserID != p.UserID {
		return Principal{}, unauthorized(errors.New("session owner mismatch"))
	}
	return p, nil
}

// DeleteAccount revokes every session of the principal's user and removes
// the user from the directory.
func (e *Engine) DeleteAccount(ctx context.Context, p Principal) error {
	if p.UserID == "" {
		return ErrInvalidInput
	}

	if err := e.sessions.RevokeAllForUser(ctx, p.UserID, ""); err != nil {
		return e.fail("delete_account_revoke", err, zap.String("user_id", p.UserID))
	}
	if err := e.users.Remove(ctx, p.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotFound
		}
		return e.fail("delete_account_remove", err, zap.String("user_id", p.UserID))
	}

	e.metricInc(MetricAccountDeleted)
	e.metricInc(MetricSessionInvalidated)
	e.logger.Info("account deleted", zap.String("user_id", p.UserID))
	return nil
}
