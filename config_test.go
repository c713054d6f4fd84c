package authcore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "test defaults valid",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing jwt secret",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = ""
			},
		},
		{
			name: "refresh secret equals jwt secret",
			mutate: func(c *Config) {
				c.Auth.RefreshSecret = c.Auth.JWTSecret
			},
		},
		{
			name: "missing forgot secret",
			mutate: func(c *Config) {
				c.Auth.ForgotSecret = ""
			},
		},
		{
			name: "refresh shorter than access",
			mutate: func(c *Config) {
				c.Auth.RefreshExpires = c.Auth.Expires
			},
		},
		{
			name: "code length too short",
			mutate: func(c *Config) {
				c.SMS.CodeLength = 3
			},
		},
		{
			name: "code length too long",
			mutate: func(c *Config) {
				c.SMS.CodeLength = 11
			},
		},
		{
			name: "zero attempts",
			mutate: func(c *Config) {
				c.SMS.MaxAttempts = 0
			},
		},
		{
			name: "zero resend interval",
			mutate: func(c *Config) {
				c.SMS.ResendInterval = 0
			},
		},
		{
			name: "negative resend interval",
			mutate: func(c *Config) {
				c.SMS.ResendInterval = -time.Second
			},
		},
		{
			name: "empty redis prefix",
			mutate: func(c *Config) {
				c.Session.RedisPrefix = ""
			},
		},
		{
			name: "weak argon2 memory",
			mutate: func(c *Config) {
				c.Password.Memory = 1024
			},
		},
		{
			name: "throttle without cooldown",
			mutate: func(c *Config) {
				c.Throttle.MaxLoginAttempts = 5
				c.Throttle.LoginCooldown = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestDefaultConfigLifetimes(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Auth.Expires != 15*time.Minute || cfg.Auth.RefreshExpires != 3650*24*time.Hour {
		t.Fatalf("unexpected token lifetimes %v %v", cfg.Auth.Expires, cfg.Auth.RefreshExpires)
	}
	if cfg.SMS.CodeLength != 6 || cfg.SMS.CodeExpires != 5*time.Minute || cfg.SMS.MaxAttempts != 5 || cfg.SMS.ResendInterval != time.Minute {
		t.Fatalf("unexpected sms defaults %+v", cfg.SMS)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "a")
	t.Setenv("AUTH_REFRESH_SECRET", "b")
	t.Setenv("AUTH_CONFIRM_EMAIL_SECRET", "c")
	t.Setenv("AUTH_FORGOT_SECRET", "d")
	t.Setenv("AUTH_JWT_TOKEN_EXPIRES_IN", "10m")
	t.Setenv("SMS_CODE_LENGTH", "4")
	t.Setenv("SMS_RESEND_INTERVAL", "30s")
	t.Setenv("SESSION_STRICT_ACCESS", "true")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.JWTSecret != "a" || cfg.Auth.Expires != 10*time.Minute {
		t.Fatalf("unexpected auth config %+v", cfg.Auth)
	}
	if cfg.SMS.CodeLength != 4 || cfg.SMS.ResendInterval != 30*time.Second || cfg.SMS.MaxAttempts != 5 {
		t.Fatalf("unexpected sms config %+v", cfg.SMS)
	}
	if !cfg.Session.StrictAccess || cfg.Session.RedisPrefix != "as" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Password.Memory != 64*1024 || cfg.Password.MinLength != 6 {
		t.Fatalf("unexpected password config %+v", cfg.Password)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("env config should validate: %v", err)
	}
}

func TestZeroResendIntervalRejected(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "a")
	t.Setenv("AUTH_REFRESH_SECRET", "b")
	t.Setenv("AUTH_CONFIRM_EMAIL_SECRET", "c")
	t.Setenv("AUTH_FORGOT_SECRET", "d")
	t.Setenv("SMS_RESEND_INTERVAL", "0s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SMS.ResendInterval != 0 {
		t.Fatalf("expected explicit zero, got %v", cfg.SMS.ResendInterval)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero resend interval must not validate")
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	bad := testConfig()
	bad.SMS.ResendInterval = 0
	_, err = New().WithConfig(bad).WithRedis(rdb).WithUserDirectory(newMemoryDirectory(time.Now)).Build()
	if err == nil {
		t.Fatalf("builder must refuse a zero resend interval")
	}
}

func TestBuilderRequirements(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	users := newMemoryDirectory(time.Now)

	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); err == nil {
		t.Fatalf("expected error without user directory")
	}
	if _, err := New().WithConfig(testConfig()).WithUserDirectory(users).Build(); err == nil {
		t.Fatalf("expected error without redis or session store")
	}

	bad := testConfig()
	bad.Auth.JWTSecret = ""
	if _, err := New().WithConfig(bad).WithRedis(rdb).WithUserDirectory(users).Build(); err == nil {
		t.Fatalf("expected config validation error")
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserDirectory(users)
	if _, err := b.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected single-use builder")
	}
}
