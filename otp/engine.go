package otp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/cache"
	"github.com/MrEthical07/authcore/internal"
)

// Engine implements the OTP lifecycle over a KeyValueCache.
type Engine struct {
	cache   KeyValueCache
	locker  Locker
	gateway SmsGateway
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
	newCode func(int) (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCodeGenerator overrides code generation. Intended for tests.
func WithCodeGenerator(gen func(int) (string, error)) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newCode = gen
		}
	}
}

// New builds an Engine. Zero-valued Config fields take DefaultConfig values.
func New(store KeyValueCache, gateway SmsGateway, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("otp: cache is required")
	}
	if gateway == nil {
		return nil, errors.New("otp: sms gateway is required")
	}

	def := DefaultConfig()
	if cfg.CodeLength == 0 {
		cfg.CodeLength = def.CodeLength
	}
	if cfg.CodeExpires == 0 {
		cfg.CodeExpires = def.CodeExpires
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.ResendInterval == 0 {
		cfg.ResendInterval = def.ResendInterval
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.CodeLength < 4 || cfg.CodeLength > 10 {
		return nil, errors.New("otp: code length must be between 4 and 10")
	}
	if cfg.CodeExpires < 0 || cfg.ResendInterval < 0 || cfg.MaxAttempts < 0 {
		return nil, errors.New("otp: durations and attempts must be positive")
	}

	e := &Engine{
		cache:   store,
		gateway: gateway,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
		newCode: internal.NewOTP,
	}
	if l, ok := store.(Locker); ok {
		e.locker = l
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Key returns the cache key for (phone, purpose).
func Key(phone string, purpose Purpose) string {
	return "otp:" + string(purpose) + ":" + phone
}

// SendCode issues a new code unless the current one is younger than the
// resend interval. The code is stored only after the gateway accepted it.
func (e *Engine) SendCode(ctx context.Context, phone string, purpose Purpose) (SendResult, error) {
	if err := validate(phone, purpose); err != nil {
		return SendResult{}, err
	}
	key := Key(phone, purpose)

	release, err := e.lock(ctx, key)
	if err != nil {
		return SendResult{}, err
	}
	defer release()

	now := e.now()
	rec, _, err := e.load(ctx, key)
	if err != nil {
		return SendResult{}, err
	}
	if rec != nil {
		age := now.Sub(time.UnixMilli(rec.CreatedAt))
		if age < e.cfg.ResendInterval {
			return SendResult{RetryAfter: ceilSeconds(e.cfg.ResendInterval - age)}, nil
		}
	}

	code, err := e.newCode(e.cfg.CodeLength)
	if err != nil {
		return SendResult{}, fmt.Errorf("otp: generate code: %w", err)
	}

	res, err := e.gateway.Send(ctx, phone, map[string]string{
		"code":             code,
		"purpose":          string(purpose),
		"expiresInMinutes": strconv.Itoa(int(e.cfg.CodeExpires / time.Minute)),
	})
	if err != nil {
		e.logger.Warn("otp delivery failed", zap.String("purpose", string(purpose)), zap.Error(err))
		return SendResult{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	if !res.Success {
		e.logger.Warn("otp delivery rejected", zap.String("purpose", string(purpose)), zap.String("message", res.Message))
		return SendResult{}, fmt.Errorf("%w: %s", ErrDeliveryFailed, res.Message)
	}

	if err := e.store(ctx, key, record{Code: code, CreatedAt: now.UnixMilli()}, e.cfg.CodeExpires); err != nil {
		return SendResult{}, err
	}

	e.logger.Debug("otp sent", zap.String("purpose", string(purpose)))
	return SendResult{Success: true}, nil
}

// VerifyCode checks code against the live record for (phone, purpose).
// A successful match consumes the record.
func (e *Engine) VerifyCode(ctx context.Context, phone, code string, purpose Purpose) (VerifyResult, error) {
	if err := validate(phone, purpose); err != nil {
		return VerifyResult{}, err
	}
	key := Key(phone, purpose)

	release, err := e.lock(ctx, key)
	if err != nil {
		return VerifyResult{}, err
	}
	defer release()

	rec, ttl, err := e.load(ctx, key)
	if err != nil {
		return VerifyResult{}, err
	}
	if rec == nil {
		return failure(ReasonNotFound), nil
	}

	if rec.Attempts >= e.cfg.MaxAttempts {
		if err := e.delete(ctx, key); err != nil {
			return VerifyResult{}, err
		}
		return failure(ReasonTooManyAttempts), nil
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		rec.Attempts++
		if ttl <= 0 {
			// Backend lost the expiry; restore it so attempts still count.
			ttl = e.cfg.CodeExpires
		}
		if err := e.store(ctx, key, *rec, ttl); err != nil {
			return VerifyResult{}, err
		}
		return failure(ReasonInvalidCode), nil
	}

	if err := e.delete(ctx, key); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Success: true}, nil
}

// HasActiveCode reports whether a live record exists for (phone, purpose).
func (e *Engine) HasActiveCode(ctx context.Context, phone string, purpose Purpose) (bool, error) {
	if err := validate(phone, purpose); err != nil {
		return false, err
	}
	rec, _, err := e.load(ctx, Key(phone, purpose))
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// DeleteCode drops the record for (phone, purpose), if any.
func (e *Engine) DeleteCode(ctx context.Context, phone string, purpose Purpose) error {
	if err := validate(phone, purpose); err != nil {
		return err
	}
	return e.delete(ctx, Key(phone, purpose))
}

func (e *Engine) lock(ctx context.Context, key string) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	release, err := e.locker.Lock(ctx, key, e.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return release, nil
}

func (e *Engine) load(ctx context.Context, key string) (*record, time.Duration, error) {
	raw, ttl, err := e.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A record we cannot read can never be verified; treat it as absent.
		e.logger.Warn("otp record corrupt", zap.String("key", key), zap.Error(err))
		return nil, 0, nil
	}
	return &rec, ttl, nil
}

func (e *Engine) store(ctx context.Context, key string, rec record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := e.cache.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (e *Engine) delete(ctx context.Context, key string) error {
	if err := e.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func validate(phone string, purpose Purpose) error {
	if phone == "" {
		return ErrInvalidPhone
	}
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}
	return nil
}

func failure(r Reason) VerifyResult {
	return VerifyResult{Reason: r, Message: r.String()}
}

func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
