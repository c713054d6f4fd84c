// Package actiontoken issues and verifies stateless, signed, expiring tokens that
// encode a one-shot intent (confirm email, reset password, confirm a new email).
//
// Tokens are never stored. Single use is enforced by the caller through state
// on the referenced user: a confirm-email token only succeeds while the user is
// still inactive, so a replay fails the precondition rather than the signature.
package actiontoken

import (
	"errors"
	"fmt"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/authcore/jwt"
)

// Purpose names the intent a token was minted for.
type Purpose string

const (
	PurposeConfirmEmail    Purpose = "confirm-email"
	PurposeResetPassword   Purpose = "reset-password"
	PurposeConfirmNewEmail Purpose = "confirm-new-email"
)

var (
	// ErrInvalidHash covers bad signatures, malformed tokens and purpose mismatches.
	ErrInvalidHash = errors.New("invalid action token")
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("action token expired")
	// ErrUnknownPurpose is returned when no secret is configured for a purpose.
	ErrUnknownPurpose = errors.New("unknown action token purpose")
)

const (
	purposeClaim  = "pur"
	newEmailClaim = "newEmail"
	stampClaim    = "stamp"
)

// subjectField maps a purpose to the claim that carries the subject id.
var subjectField = map[Purpose]string{
	PurposeConfirmEmail:    "confirmEmailUserId",
	PurposeConfirmNewEmail: "confirmEmailUserId",
	PurposeResetPassword:   "forgotUserId",
}

// Extra holds optional purpose-specific payload.
type Extra struct {
	NewEmail string
	// Stamp binds the token to caller state (for reset-password, a digest
	// of the current password hash) so it stops verifying once that state
	// changes.
	Stamp string
}

// Payload is what VerifyToken recovers from a valid token.
type Payload struct {
	SubjectID string
	Extra     Extra
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs tokens with one secret per purpose.
type Codec struct {
	secrets map[Purpose][]byte
	now     func() time.Time
}

// NewCodec builds a codec. Every purpose used later must have a non-empty secret.
func NewCodec(secrets map[Purpose][]byte, now func() time.Time) (*Codec, error) {
	if len(secrets) == 0 {
		return nil, errors.New("action token codec requires at least one secret")
	}
	if now == nil {
		now = time.Now
	}

	copied := make(map[Purpose][]byte, len(secrets))
	for purpose, secret := range secrets {
		if _, ok := subjectField[purpose]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
		}
		if len(secret) == 0 {
			return nil, fmt.Errorf("empty secret for purpose %q", purpose)
		}
		copied[purpose] = append([]byte(nil), secret...)
	}

	return &Codec{secrets: copied, now: now}, nil
}

// IssueToken signs {<subjectField>: subjectID, newEmail?, stamp?} for purpose, valid for ttl.
func (c *Codec) IssueToken(purpose Purpose, subjectID string, extra *Extra, ttl time.Duration) (string, error) {
	m, err := c.manager(purpose, ttl)
	if err != nil {
		return "", err
	}
	if subjectID == "" {
		return "", errors.New("action token requires a subject id")
	}

	now := c.now()
	claims := gjwt.MapClaims{
		subjectField[purpose]: subjectID,
		purposeClaim:          string(purpose),
		"iat":                 now.Unix(),
		"exp":                 now.Add(ttl).Unix(),
	}
	if extra != nil && extra.NewEmail != "" {
		claims[newEmailClaim] = extra.NewEmail
	}
	if extra != nil && extra.Stamp != "" {
		claims[stampClaim] = extra.Stamp
	}

	return m.Sign(claims)
}

// VerifyToken checks signature, expiry and purpose binding.
func (c *Codec) VerifyToken(token string, purpose Purpose) (*Payload, error) {
	m, err := c.manager(purpose, time.Minute)
	if err != nil {
		return nil, err
	}

	claims := gjwt.MapClaims{}
	if err := m.Parse(token, claims); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidHash
	}

	if got, _ := claims[purposeClaim].(string); got != string(purpose) {
		return nil, ErrInvalidHash
	}
	subject, _ := claims[subjectField[purpose]].(string)
	if subject == "" {
		return nil, ErrInvalidHash
	}

	payload := &Payload{SubjectID: subject}
	payload.Extra.NewEmail, _ = claims[newEmailClaim].(string)
	payload.Extra.Stamp, _ = claims[stampClaim].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		payload.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		payload.IssuedAt = iat.Time
	}
	if purpose == PurposeConfirmNewEmail && payload.Extra.NewEmail == "" {
		return nil, ErrInvalidHash
	}

	return payload, nil
}

func (c *Codec) manager(purpose Purpose, ttl time.Duration) (*jwt.Manager, error) {
	secret, ok := c.secrets[purpose]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
	if ttl <= 0 {
		return nil, errors.New("action token ttl must be positive")
	}
	return jwt.NewManager(jwt.Config{TTL: ttl, PrivateKey: secret, Now: c.now})
}
