package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ValidateAccess func(token string) (userID, sessionID string, err error)
	RevokeSession  func(ctx context.Context, sessionID string) error
	RevokeAll      func(ctx context.Context, userID, exceptSessionID string) error
}

// LogoutByAccessResult reports which session a token logout targeted.
type LogoutByAccessResult struct {
	SessionID string
	// Invalid is set when the token itself was rejected; Err is then the
	// parse error.
	Invalid bool
	Err     error
}

// RunLogout revokes one session.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	return deps.RevokeSession(ctx, sessionID)
}

// RunLogoutAll revokes every session of userID.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) error {
	return deps.RevokeAll(ctx, userID, "")
}

// RunLogoutByAccessToken revokes the session an access token is bound to.
func RunLogoutByAccessToken(ctx context.Context, token string, deps LogoutDeps) LogoutByAccessResult {
	_, sessionID, err := deps.ValidateAccess(token)
	if err != nil {
		return LogoutByAccessResult{Invalid: true, Err: err}
	}
	return LogoutByAccessResult{
		SessionID: sessionID,
		Err:       deps.RevokeSession(ctx, sessionID),
	}
}
