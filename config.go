package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Config is the complete engine configuration. Build it with DefaultConfig
// or LoadConfigFromEnv and adjust fields before passing it to the Builder.
type Config struct {
	Auth     AuthConfig
	SMS      SMSConfig
	Session  SessionConfig
	Password PasswordConfig
	Throttle ThrottleConfig
	Metrics  MetricsConfig
}

// AuthConfig holds token secrets and lifetimes. Expires and RefreshExpires
// are the access and refresh token TTLs.
type AuthConfig struct {
	JWTSecret           string        `env:"AUTH_JWT_SECRET"`
	Expires             time.Duration `env:"AUTH_JWT_TOKEN_EXPIRES_IN" envDefault:"15m"`
	RefreshSecret       string        `env:"AUTH_REFRESH_SECRET"`
	RefreshExpires      time.Duration `env:"AUTH_REFRESH_TOKEN_EXPIRES_IN" envDefault:"87600h"`
	ConfirmEmailSecret  string        `env:"AUTH_CONFIRM_EMAIL_SECRET"`
	ConfirmEmailExpires time.Duration `env:"AUTH_CONFIRM_EMAIL_TOKEN_EXPIRES_IN" envDefault:"24h"`
	ForgotSecret        string        `env:"AUTH_FORGOT_SECRET"`
	ForgotExpires       time.Duration `env:"AUTH_FORGOT_TOKEN_EXPIRES_IN" envDefault:"30m"`
	Issuer              string        `env:"AUTH_JWT_ISSUER"`
}

// SMSConfig is the OTP code policy.
type SMSConfig struct {
	CodeLength     int           `env:"SMS_CODE_LENGTH" envDefault:"6"`
	CodeExpires    time.Duration `env:"SMS_CODE_EXPIRES" envDefault:"5m"`
	MaxAttempts    int           `env:"SMS_MAX_ATTEMPTS" envDefault:"5"`
	ResendInterval time.Duration `env:"SMS_RESEND_INTERVAL" envDefault:"60s"`
	// RequireForPhoneRegistration makes RegisterWithPhone verify a
	// "register" code before creating the user.
	RequireForPhoneRegistration bool `env:"SMS_REQUIRE_FOR_PHONE_REGISTRATION" envDefault:"false"`
}

// SessionConfig controls session storage and access validation.
type SessionConfig struct {
	RedisPrefix string `env:"SESSION_REDIS_PREFIX" envDefault:"as"`
	// StrictAccess makes ValidateAccess confirm the session still exists,
	// so logout takes effect before the access token expires.
	StrictAccess bool `env:"SESSION_STRICT_ACCESS" envDefault:"false"`
}

// PasswordConfig holds the Argon2id parameters for new hashes.
type PasswordConfig struct {
	Memory      uint32 `env:"PASSWORD_ARGON2_MEMORY_KB" envDefault:"65536"`
	Time        uint32 `env:"PASSWORD_ARGON2_TIME" envDefault:"3"`
	Parallelism uint8  `env:"PASSWORD_ARGON2_PARALLELISM" envDefault:"2"`
	SaltLength  uint32 `env:"PASSWORD_ARGON2_SALT_LENGTH" envDefault:"16"`
	KeyLength   uint32 `env:"PASSWORD_ARGON2_KEY_LENGTH" envDefault:"32"`
	MinLength   int    `env:"PASSWORD_MIN_LENGTH" envDefault:"6"`
}

// ThrottleConfig bounds failed password logins per identifier. Zero
// MaxLoginAttempts disables throttling.
type ThrottleConfig struct {
	MaxLoginAttempts int           `env:"AUTH_MAX_LOGIN_ATTEMPTS" envDefault:"0"`
	LoginCooldown    time.Duration `env:"AUTH_LOGIN_COOLDOWN" envDefault:"15m"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"AUTH_METRICS_ENABLED" envDefault:"false"`
	EnableLatencyHistograms bool `env:"AUTH_METRICS_LATENCY" envDefault:"false"`
}

// DefaultConfig returns a configuration with every lifetime and policy at
// its default. Secrets are empty and must be set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Auth: AuthConfig{
			Expires:             15 * time.Minute,
			RefreshExpires:      3650 * 24 * time.Hour,
			ConfirmEmailExpires: 24 * time.Hour,
			ForgotExpires:       30 * time.Minute,
		},
		SMS: SMSConfig{
			CodeLength:     6,
			CodeExpires:    5 * time.Minute,
			MaxAttempts:    5,
			ResendInterval: 60 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix: "as",
		},
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			MinLength:   pw.MinLength,
		},
		Throttle: ThrottleConfig{
			LoginCooldown: 15 * time.Minute,
		},
	}
}

// LoadConfigFromEnv reads the configuration from environment variables.
// Unset variables take their defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Auth
	if c.Auth.JWTSecret == "" {
		return errors.New("Auth JWTSecret is required")
	}
	if c.Auth.RefreshSecret == "" {
		return errors.New("Auth RefreshSecret is required")
	}
	if c.Auth.RefreshSecret == c.Auth.JWTSecret {
		return errors.New("Auth RefreshSecret must differ from JWTSecret")
	}
	if c.Auth.ConfirmEmailSecret == "" {
		return errors.New("Auth ConfirmEmailSecret is required")
	}
	if c.Auth.ForgotSecret == "" {
		return errors.New("Auth ForgotSecret is required")
	}
	if c.Auth.Expires <= 0 {
		return errors.New("Auth Expires must be > 0")
	}
	if c.Auth.RefreshExpires <= c.Auth.Expires {
		return errors.New("Auth RefreshExpires must be > Expires")
	}
	if c.Auth.ConfirmEmailExpires <= 0 {
		return errors.New("Auth ConfirmEmailExpires must be > 0")
	}
	if c.Auth.ForgotExpires <= 0 {
		return errors.New("Auth ForgotExpires must be > 0")
	}

	// SMS
	if c.SMS.CodeLength < 4 || c.SMS.CodeLength > 10 {
		return errors.New("SMS CodeLength must be between 4 and 10")
	}
	if c.SMS.CodeExpires <= 0 {
		return errors.New("SMS CodeExpires must be > 0")
	}
	if c.SMS.MaxAttempts < 1 {
		return errors.New("SMS MaxAttempts must be >= 1")
	}
	if c.SMS.ResendInterval <= 0 {
		return errors.New("SMS ResendInterval must be > 0")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Password
	if _, err := password.NewHasher(c.passwordConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	// Throttle
	if c.Throttle.MaxLoginAttempts < 0 {
		return errors.New("Throttle MaxLoginAttempts must be >= 0")
	}
	if c.Throttle.MaxLoginAttempts > 0 && c.Throttle.LoginCooldown <= 0 {
		return errors.New("Throttle LoginCooldown must be > 0 when MaxLoginAttempts is set")
	}

	return nil
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
		MinLength:   c.Password.MinLength,
	}
}

func (c *Config) accessJWT(now func() time.Time) jwt.Config {
	return jwt.Config{
		TTL:           c.Auth.Expires,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(c.Auth.JWTSecret),
		Issuer:        c.Auth.Issuer,
		Now:           now,
	}
}

func (c *Config) refreshJWT(now func() time.Time) jwt.Config {
	return jwt.Config{
		TTL:           c.Auth.RefreshExpires,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(c.Auth.RefreshSecret),
		Issuer:        c.Auth.Issuer,
		Now:           now,
	}
}
