package otp

import (
	"context"
	"errors"
	"time"
)

// Purpose scopes a code to one flow. Codes never cross purposes.
type Purpose string

const (
	PurposeLogin         Purpose = "login"
	PurposeRegister      Purpose = "register"
	PurposeResetPassword Purpose = "reset-password"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeRegister, PurposeResetPassword:
		return true
	}
	return false
}

var (
	// ErrInvalidPurpose is returned for an unknown purpose.
	ErrInvalidPurpose = errors.New("otp: invalid purpose")
	// ErrInvalidPhone is returned for an empty phone number.
	ErrInvalidPhone = errors.New("otp: invalid phone")
	// ErrDeliveryFailed is returned when the SMS gateway reports failure.
	// No code is stored in that case.
	ErrDeliveryFailed = errors.New("otp: delivery failed")
	// ErrStoreUnavailable wraps cache failures.
	ErrStoreUnavailable = errors.New("otp: store unavailable")
)

// KeyValueCache is the TTL-backed store holding OTP records. Get returns
// the remaining TTL next to the value, and cache.ErrMiss when the key is
// absent or expired.
type KeyValueCache interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker is an optional capability of a KeyValueCache.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// SmsResult is the gateway's delivery report.
type SmsResult struct {
	Success bool
	Message string
}

// SmsGateway delivers a templated SMS. params carries "code", "purpose"
// and "expiresInMinutes".
type SmsGateway interface {
	Send(ctx context.Context, phone string, params map[string]string) (SmsResult, error)
}

// Config tunes code generation and limits.
type Config struct {
	CodeLength     int
	CodeExpires    time.Duration
	MaxAttempts    int
	ResendInterval time.Duration
	// LockTTL bounds how long a crashed holder can keep a key locked.
	LockTTL time.Duration
}

// DefaultConfig returns the default code policy: 6 digits, 5 minute
// lifetime, 5 attempts, 60 second resend interval.
func DefaultConfig() Config {
	return Config{
		CodeLength:     6,
		CodeExpires:    5 * time.Minute,
		MaxAttempts:    5,
		ResendInterval: 60 * time.Second,
		LockTTL:        5 * time.Second,
	}
}

// SendResult reports a SendCode outcome. When Success is false RetryAfter
// holds the whole seconds until a new code may be requested.
type SendResult struct {
	Success    bool
	RetryAfter int
}

// Reason classifies a failed verification.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonTooManyAttempts
	ReasonInvalidCode
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "expired or not found"
	case ReasonTooManyAttempts:
		return "too many attempts"
	case ReasonInvalidCode:
		return "invalid code"
	}
	return ""
}

// VerifyResult reports a VerifyCode outcome.
type VerifyResult struct {
	Success bool
	Reason  Reason
	Message string
}

type record struct {
	Code      string `json:"code"`
	Attempts  int    `json:"attempts"`
	CreatedAt int64  `json:"createdAt"`
}
