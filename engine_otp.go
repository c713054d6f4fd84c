package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/otp"
)

// SendCode delivers a one-time code for purpose to phone. A resend inside
// the resend interval fails with a rateLimited error carrying RetryAfter
// and leaves the live code untouched.
func (e *Engine) SendCode(ctx context.Context, phone string, purpose OTPPurpose) error {
	phone = normalizePhone(phone)
	if phone == "" || !purpose.Valid() {
		return ErrInvalidInput
	}
	if e.otp == nil {
		return ErrFeatureUnavailable
	}

	res, err := e.otp.SendCode(ctx, phone, purpose)
	if err != nil {
		e.metricInc(MetricOTPSendFailure)
		return e.fail("send_code", err, zap.String("purpose", string(purpose)))
	}
	if !res.Success {
		e.metricInc(MetricOTPThrottled)
		return rateLimited("phone", res.RetryAfter)
	}

	e.metricInc(MetricOTPSent)
	return nil
}

// verifyCode consumes a code. Every rejection maps to invalidCode; the
// reason travels in Err.
func (e *Engine) verifyCode(ctx context.Context, phone, code string, purpose OTPPurpose) error {
	if e.otp == nil {
		return ErrFeatureUnavailable
	}

	res, err := e.otp.VerifyCode(ctx, phone, code, purpose)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidPhone) || errors.Is(err, otp.ErrInvalidPurpose) {
			return ErrInvalidInput
		}
		return e.fail("verify_code", err, zap.String("purpose", string(purpose)))
	}
	if !res.Success {
		e.metricInc(MetricOTPVerifyFailure)
		if res.Reason == otp.ReasonTooManyAttempts {
			e.metricInc(MetricOTPAttemptsExceeded)
		}
		return &Error{Kind: ErrInvalidCode.Kind, Field: ErrInvalidCode.Field, Code: ErrInvalidCode.Code, Err: errors.New(res.Reason.String())}
	}

	e.metricInc(MetricOTPVerifySuccess)
	return nil
}
