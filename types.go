package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/otp"
)

// Provider is the identity channel a user registered through. A user may
// only log in through the provider they registered with.
type Provider string

const (
	ProviderEmail  Provider = "email"
	ProviderPhone  Provider = "phone"
	ProviderWechat Provider = "wechat"
)

// Status is the account lifecycle state.
type Status uint8

const (
	StatusActive Status = iota + 1
	// StatusInactive marks an email account awaiting confirmation.
	StatusInactive
	// StatusBlocked is never set by this package; directories may use it
	// to bar a user from every login path.
	StatusBlocked
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusBlocked:
		return "blocked"
	}
	return "unknown"
}

const (
	RoleAdmin = 1
	RoleUser  = 2
)

// User is the account record owned by the UserDirectory. At most the
// identity field matching Provider is set.
type User struct {
	ID           string
	Email        string
	Phone        string
	WechatOpenID string
	PasswordHash string
	Provider     Provider
	Status       Status
	RoleID       int
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser is the input of UserDirectory.Create.
type NewUser struct {
	Email        string
	Phone        string
	WechatOpenID string
	PasswordHash string
	Provider     Provider
	Status       Status
	RoleID       int
	FirstName    string
	LastName     string
}

// UserUpdate lists the fields to change; nil fields are left as they are.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
	Status       *Status
	FirstName    *string
	LastName     *string
}

var (
	// ErrUserNotFound must be returned by UserDirectory lookups that find
	// nothing.
	ErrUserNotFound = errors.New("authcore: user not found")
	// ErrUserExists must be returned by UserDirectory.Create and Update when
	// a unique identity field is already taken.
	ErrUserExists = errors.New("authcore: user already exists")
)

// UserDirectory is the user persistence collaborator.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	Create(ctx context.Context, in NewUser) (*User, error)
	Update(ctx context.Context, id string, in UserUpdate) (*User, error)
	Remove(ctx context.Context, id string) error
}

// Mail templates sent by the engine. data always carries "token"; the
// confirmation templates also carry "email".
const (
	TemplateConfirmEmail    = "confirm-email"
	TemplateConfirmNewEmail = "confirm-new-email"
	TemplateResetPassword   = "reset-password"
)

// MailDispatcher delivers templated mail.
type MailDispatcher interface {
	Send(ctx context.Context, to, template string, data map[string]string) error
}

// SmsGateway delivers the OTP SMS.
type SmsGateway = otp.SmsGateway

// SmsResult is the gateway's delivery report.
type SmsResult = otp.SmsResult

// OTPPurpose scopes a one-time code to one flow.
type OTPPurpose = otp.Purpose

const (
	OTPLogin         = otp.PurposeLogin
	OTPRegister      = otp.PurposeRegister
	OTPResetPassword = otp.PurposeResetPassword
)

// ExternalProfile is the optional profile the OAuth provider returns.
type ExternalProfile struct {
	Nickname  string
	AvatarURL string
}

// ExternalIdentity is a stable third-party account id.
type ExternalIdentity struct {
	ExternalID string
	Profile    ExternalProfile
}

// OAuthProvider exchanges an authorization code for an identity.
type OAuthProvider interface {
	Exchange(ctx context.Context, code string) (ExternalIdentity, error)
}

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// LoginResult is returned by every successful login.
type LoginResult struct {
	TokenPair
	User *User
}

// Principal is the identity carried by a verified access token.
type Principal struct {
	UserID    string
	RoleID    int
	SessionID string
}

// PhoneRegistration is the input of RegisterWithPhone. Code is required
// when SMS.RequireForPhoneRegistration is set.
type PhoneRegistration struct {
	Phone     string
	Password  string
	Code      string
	FirstName string
	LastName  string
}

// EmailRegistration is the input of RegisterWithEmail.
type EmailRegistration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// CredentialVerifier is the per-provider login surface. *Engine implements it.
type CredentialVerifier interface {
	LoginWithEmail(ctx context.Context, email, password string) (*LoginResult, error)
	LoginWithPhone(ctx context.Context, phone, password string) (*LoginResult, error)
	LoginWithPhoneCode(ctx context.Context, phone, code string) (*LoginResult, error)
	LoginWithWechat(ctx context.Context, code string) (*LoginResult, error)
}

var _ CredentialVerifier = (*Engine)(nil)
