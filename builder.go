package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/actiontoken"
	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/otp"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Builder assembles an Engine from a Config and its collaborators.
//
// A Builder is single-use: configure it during initialization, call Build
// once, and discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserDirectory
	sessions session.Store
	cache    otp.KeyValueCache
	mail     MailDispatcher
	sms      SmsGateway
	oauth    OAuthProvider

	logger *zap.Logger
	now    func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client backing the default session store, OTP cache
// and login throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserDirectory sets the user persistence collaborator. Required.
func (b *Builder) WithUserDirectory(users UserDirectory) *Builder {
	b.users = users
	return b
}

// WithSessionStore overrides the Redis session store.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithCache overrides the Redis OTP cache. Caches that also implement
// otp.Locker serialize SendCode and VerifyCode per key.
func (b *Builder) WithCache(c otp.KeyValueCache) *Builder {
	b.cache = c
	return b
}

// WithMailDispatcher enables the email confirmation and password reset
// flows.
func (b *Builder) WithMailDispatcher(m MailDispatcher) *Builder {
	b.mail = m
	return b
}

// WithSmsGateway enables the OTP flows.
func (b *Builder) WithSmsGateway(g SmsGateway) *Builder {
	b.sms = g
	return b
}

// WithOAuthProvider enables LoginWithWechat.
func (b *Builder) WithOAuthProvider(p OAuthProvider) *Builder {
	b.oauth = p
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the ValidateAccess latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user directory required")
	}
	if b.redis == nil && b.sessions == nil {
		return nil, errors.New("redis client or session store required")
	}
	if b.sms != nil && b.redis == nil && b.cache == nil {
		return nil, errors.New("sms gateway requires redis client or cache")
	}
	if cfg.Throttle.MaxLoginAttempts > 0 && b.redis == nil {
		return nil, errors.New("Throttle requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSIONS --------
	store := b.sessions
	if store == nil {
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	sessions := session.NewManager(store, cfg.Auth.RefreshExpires,
		session.WithLogger(logger.Named("session")),
		session.WithClock(now),
	)

	// -------- TOKENS --------
	accessManager, err := jwt.NewManager(cfg.accessJWT(now))
	if err != nil {
		return nil, fmt.Errorf("access token manager: %w", err)
	}
	refreshManager, err := jwt.NewManager(cfg.refreshJWT(now))
	if err != nil {
		return nil, fmt.Errorf("refresh token manager: %w", err)
	}
	tokens, err := NewTokenIssuer(accessManager, refreshManager)
	if err != nil {
		return nil, err
	}

	actions, err := actiontoken.NewCodec(map[actiontoken.Purpose][]byte{
		actiontoken.PurposeConfirmEmail:    []byte(cfg.Auth.ConfirmEmailSecret),
		actiontoken.PurposeConfirmNewEmail: []byte(cfg.Auth.ConfirmEmailSecret),
		actiontoken.PurposeResetPassword:   []byte(cfg.Auth.ForgotSecret),
	}, now)
	if err != nil {
		return nil, fmt.Errorf("action token codec: %w", err)
	}

	// -------- PASSWORDS --------
	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	// -------- OTP --------
	var codes *otp.Engine
	if b.sms != nil {
		kv := b.cache
		if kv == nil {
			kv = cache.NewRedis(b.redis, "")
		}
		codes, err = otp.New(kv, b.sms, otp.Config{
			CodeLength:     cfg.SMS.CodeLength,
			CodeExpires:    cfg.SMS.CodeExpires,
			MaxAttempts:    cfg.SMS.MaxAttempts,
			ResendInterval: cfg.SMS.ResendInterval,
		}, otp.WithLogger(logger.Named("otp")), otp.WithClock(now))
		if err != nil {
			return nil, err
		}
	}

	// -------- THROTTLE --------
	var limiter *rate.Limiter
	if cfg.Throttle.MaxLoginAttempts > 0 {
		limiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Session.RedisPrefix,
			MaxLoginAttempts:      cfg.Throttle.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Throttle.LoginCooldown,
		})
	}

	b.built = true

	return &Engine{
		config:   cfg,
		users:    b.users,
		sessions: sessions,
		tokens:   tokens,
		actions:  actions,
		otp:      codes,
		hasher:   hasher,
		limiter:  limiter,
		mail:     b.mail,
		oauth:    b.oauth,
		logger:   logger,
		metrics:  NewMetrics(cfg.Metrics),
		now:      now,
	}, nil
}
