package authcore

import (
	"errors"
	"strings"
)

// Kind is the coarse category of an *Error. Transports map it to a status.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindConflict
	KindRateLimited
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is the only error type returned by Engine operations. Field names
// the input the failure is about; Code is the stable machine-readable code.
// Err carries the underlying cause for logging and is never part of Error().
type Error struct {
	Kind  Kind
	Field string
	Code  string
	// RetryAfter is set in seconds for KindRateLimited.
	RetryAfter int
	Err        error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Code
	}
	return e.Field + ": " + e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and base code, so
// errors.Is(err, ErrNeedLoginViaProvider) holds for any provider suffix.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && baseCode(e.Code) == baseCode(t.Code)
}

func baseCode(code string) string {
	if i := strings.IndexByte(code, ':'); i >= 0 {
		return code[:i]
	}
	return code
}

var (
	// ErrNotFound: the referenced user no longer exists.
	ErrNotFound = &Error{Kind: KindNotFound, Field: "user", Code: "notFound"}
	// ErrEmailNotExists: no user is registered with the email.
	ErrEmailNotExists = &Error{Kind: KindNotFound, Field: "email", Code: "emailNotExists"}
	// ErrPhoneNotFound: no user is registered with the phone number.
	ErrPhoneNotFound = &Error{Kind: KindNotFound, Field: "phone", Code: "phoneNotFound"}

	// ErrNeedLoginViaProvider: the user registered through another provider.
	// Returned errors carry the provider as a code suffix.
	ErrNeedLoginViaProvider = &Error{Kind: KindValidation, Field: "provider", Code: "needLoginViaProvider"}

	ErrIncorrectPassword        = &Error{Kind: KindValidation, Field: "password", Code: "incorrectPassword"}
	ErrIncorrectPhoneOrPassword = &Error{Kind: KindValidation, Field: "phone", Code: "incorrectPhoneOrPassword"}
	ErrIncorrectOldPassword     = &Error{Kind: KindValidation, Field: "oldPassword", Code: "incorrectOldPassword"}

	ErrUserNotActive = &Error{Kind: KindValidation, Field: "status", Code: "userNotActive"}

	ErrTokenExpired = &Error{Kind: KindValidation, Field: "token", Code: "tokenExpired"}
	ErrInvalidHash  = &Error{Kind: KindValidation, Field: "token", Code: "invalidHash"}

	ErrInvalidCode = &Error{Kind: KindValidation, Field: "code", Code: "invalidCode"}
	ErrRateLimited = &Error{Kind: KindRateLimited, Field: "code", Code: "rateLimited"}

	ErrEmailAlreadyExists = &Error{Kind: KindConflict, Field: "email", Code: "emailAlreadyExists"}
	ErrPhoneAlreadyExists = &Error{Kind: KindConflict, Field: "phone", Code: "phoneAlreadyExists"}

	// ErrInvalidInput: a required argument is empty or malformed.
	ErrInvalidInput = &Error{Kind: KindValidation, Code: "invalidInput"}
	// ErrPasswordPolicy: the new password does not satisfy the hasher's policy.
	ErrPasswordPolicy = &Error{Kind: KindValidation, Field: "password", Code: "passwordTooShort"}

	// ErrUnauthorized is deliberately detail-free: refresh and access
	// failures never say which check failed.
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Code: "unauthorized"}
	// ErrInternal hides collaborator and store failures from callers.
	ErrInternal = &Error{Kind: KindInternal, Code: "internal"}

	// ErrFeatureUnavailable: the operation needs a collaborator that was
	// not configured (mail dispatcher, SMS gateway, OAuth provider).
	ErrFeatureUnavailable = &Error{Kind: KindInternal, Code: "featureUnavailable"}
)

func needLoginVia(p Provider) *Error {
	return &Error{Kind: KindValidation, Field: "provider", Code: "needLoginViaProvider:" + string(p)}
}

func rateLimited(field string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Field: field, Code: "rateLimited", RetryAfter: retryAfter}
}

func internalError(cause error) *Error {
	return &Error{Kind: KindInternal, Code: ErrInternal.Code, Err: cause}
}

func unauthorized(cause error) *Error {
	return &Error{Kind: KindUnauthorized, Code: ErrUnauthorized.Code, Err: cause}
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
