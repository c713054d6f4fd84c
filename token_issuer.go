package authcore

import (
	"errors"

	"github.com/MrEthical07/authcore/jwt"
)

// TokenIssuer mints access and refresh tokens with independent secrets.
// The refresh token carries only {sessionId, hash} and cannot authorize
// anything by itself.
type TokenIssuer struct {
	access  *jwt.Manager
	refresh *jwt.Manager
}

// NewTokenIssuer pairs an access and a refresh token manager.
func NewTokenIssuer(access, refresh *jwt.Manager) (*TokenIssuer, error) {
	if access == nil || refresh == nil {
		return nil, errors.New("token issuer requires access and refresh managers")
	}
	return &TokenIssuer{access: access, refresh: refresh}, nil
}

// Issue mints a pair bound to sessionID and its current hash.
func (t *TokenIssuer) Issue(userID string, roleID int, sessionID, hash string) (TokenPair, error) {
	access, exp, err := t.access.CreateAccess(userID, roleID, sessionID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := t.refresh.CreateRefresh(sessionID, hash)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, AccessExpiresAt: exp}, nil
}

// ValidateRefresh checks signature and expiry only. Whether the hash is
// still current is the session manager's decision.
func (t *TokenIssuer) ValidateRefresh(token string) (sessionID, hash string, err error) {
	claims, err := t.refresh.ParseRefresh(token)
	if err != nil {
		return "", "", err
	}
	return claims.SessionID, claims.Hash, nil
}

// ValidateAccess checks an access token and returns its principal.
func (t *TokenIssuer) ValidateAccess(token string) (Principal, error) {
	claims, err := t.access.ParseAccess(token)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.ID, RoleID: claims.Role.ID, SessionID: claims.SessionID}, nil
}
