package authcore

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/actiontoken"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/otp"
)

// ChangePassword re-verifies the current password, stores the new one and
// revokes every session of the user except p.SessionID.
func (e *Engine) ChangePassword(ctx context.Context, p Principal, oldPassword, newPassword string) error {
	if p.UserID == "" || oldPassword == "" || newPassword == "" {
		return ErrInvalidInput
	}

	res := flows.RunChangePassword(ctx, flows.ChangePasswordRequest{
		UserID:      p.UserID,
		SessionID:   p.SessionID,
		OldPassword: oldPassword,
		NewPassword: newPassword,
	}, e.passwordDeps())
	if res.Failure != flows.PasswordFailureNone {
		if res.Failure == flows.PasswordFailureInvalidOld {
			e.metricInc(MetricPasswordChangeInvalidOld)
		}
		return e.passwordError("change_password", res)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.logger.Info("password changed", zap.String("user_id", p.UserID))
	return nil
}

// ForgotPassword mails a reset-password token to a registered email
// address.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	u, found, err := find(ctx, e.users.FindByEmail, email)
	if err != nil {
		return e.fail("forgot_password_lookup", err)
	}
	if !found {
		return ErrEmailNotExists
	}
	if u.Provider != ProviderEmail {
		return needLoginVia(u.Provider)
	}

	token, err := e.actions.IssueToken(actiontoken.PurposeResetPassword, u.ID, &actiontoken.Extra{Stamp: passwordStamp(u.PasswordHash)}, e.config.Auth.ForgotExpires)
	if err != nil {
		return e.fail("forgot_password_token", err, zap.String("user_id", u.ID))
	}
	if err := e.sendMail(ctx, "forgot_password_mail", u.Email, TemplateResetPassword, map[string]string{
		"token": token,
	}); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	return nil
}

// ResetPassword replaces the password of the user a reset-password token
// names and revokes all of their sessions.
//
// The token is bound to the password hash current at issuance, so it stops
// working as soon as the password changes and a completed reset cannot be
// replayed.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return ErrInvalidInput
	}

	payload, err := e.actions.VerifyToken(token, actiontoken.PurposeResetPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return actionTokenError(err)
	}

	u, found, err := find(ctx, e.users.FindByID, payload.SubjectID)
	if err != nil {
		return e.fail("reset_password_lookup", err)
	}
	if !found {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrNotFound
	}
	if subtle.ConstantTimeCompare([]byte(payload.Extra.Stamp), []byte(passwordStamp(u.PasswordHash))) != 1 {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrInvalidHash
	}

	return e.resetPassword(ctx, "reset_password", u.ID, newPassword)
}

// ResetPasswordWithPhone replaces a phone account's password after a
// "reset-password" code check and revokes all of its sessions.
func (e *Engine) ResetPasswordWithPhone(ctx context.Context, phone, code, newPassword string) error {
	phone = normalizePhone(phone)
	if phone == "" || code == "" || newPassword == "" {
		return ErrInvalidInput
	}

	u, found, err := find(ctx, e.users.FindByPhone, phone)
	if err != nil {
		return e.fail("reset_password_phone_lookup", err)
	}
	if !found {
		return ErrPhoneNotFound
	}
	if u.Provider != ProviderPhone {
		return needLoginVia(u.Provider)
	}

	if err := e.verifyCode(ctx, phone, code, otp.PurposeResetPassword); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}

	return e.resetPassword(ctx, "reset_password_phone", u.ID, newPassword)
}

func (e *Engine) resetPassword(ctx context.Context, op, userID, newPassword string) error {
	res := flows.RunResetPassword(ctx, userID, newPassword, e.passwordDeps())
	if res.Failure != flows.PasswordFailureNone {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return e.passwordError(op, res)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.logger.Info("password reset", zap.String("user_id", userID))
	return nil
}

// passwordStamp is a short digest of a password hash. It never reveals the
// hash and changes whenever the password does.
func passwordStamp(hash string) string {
	sum := sha256.Sum256([]byte("reset:" + hash))
	return base64.RawURLEncoding.EncodeToString(sum[:12])
}
