package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/actiontoken"
)

// ChangeEmail mails a confirm-new-email token to newEmail. Nothing changes
// until ConfirmNewEmail succeeds.
func (e *Engine) ChangeEmail(ctx context.Context, p Principal, newEmail string) error {
	newEmail = normalizeEmail(newEmail)
	if p.UserID == "" || newEmail == "" {
		return ErrInvalidInput
	}

	u, found, err := find(ctx, e.users.FindByID, p.UserID)
	if err != nil {
		return e.fail("change_email_lookup", err)
	}
	if !found {
		return ErrNotFound
	}
	if u.Provider != ProviderEmail {
		return needLoginVia(u.Provider)
	}

	_, taken, err := find(ctx, e.users.FindByEmail, newEmail)
	if err != nil {
		return e.fail("change_email_lookup", err)
	}
	if taken {
		return ErrEmailAlreadyExists
	}

	token, err := e.actions.IssueToken(actiontoken.PurposeConfirmNewEmail, u.ID, &actiontoken.Extra{NewEmail: newEmail}, e.config.Auth.ConfirmEmailExpires)
	if err != nil {
		return e.fail("change_email_token", err, zap.String("user_id", u.ID))
	}
	if err := e.sendMail(ctx, "change_email_mail", newEmail, TemplateConfirmNewEmail, map[string]string{
		"token": token,
		"email": newEmail,
	}); err != nil {
		return err
	}

	e.metricInc(MetricEmailChangeRequest)
	return nil
}

// ConfirmNewEmail applies the address carried by a confirm-new-email token
// and marks the user active.
func (e *Engine) ConfirmNewEmail(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidInput
	}

	payload, err := e.actions.VerifyToken(token, actiontoken.PurposeConfirmNewEmail)
	if err != nil {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, actionTokenError(err)
	}
	newEmail := normalizeEmail(payload.Extra.NewEmail)
	if newEmail == "" {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, ErrInvalidHash
	}

	u, found, err := find(ctx, e.users.FindByID, payload.SubjectID)
	if err != nil {
		return nil, e.fail("confirm_new_email_lookup", err)
	}
	if !found {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, ErrNotFound
	}
	if u.Email == newEmail {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, ErrInvalidHash
	}

	active := StatusActive
	u, err = e.users.Update(ctx, u.ID, UserUpdate{Email: &newEmail, Status: &active})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, ErrEmailAlreadyExists
		}
		return nil, e.fail("confirm_new_email_update", err, zap.String("user_id", payload.SubjectID))
	}

	e.metricInc(MetricEmailConfirmSuccess)
	return u, nil
}
