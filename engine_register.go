package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/actiontoken"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/otp"
)

// RegisterWithEmail creates an inactive email account and mails a
// confirm-email token. The user may log in before confirming.
func (e *Engine) RegisterWithEmail(ctx context.Context, in EmailRegistration) (*User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}

	_, exists, err := find(ctx, e.users.FindByEmail, email)
	if err != nil {
		return nil, e.fail("register_email_lookup", err)
	}
	if exists {
		e.metricInc(MetricAccountCreationDuplicate)
		return nil, ErrEmailAlreadyExists
	}

	hash, err := e.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := e.users.Create(ctx, NewUser{
		Email:        email,
		PasswordHash: hash,
		Provider:     ProviderEmail,
		Status:       StatusInactive,
		RoleID:       RoleUser,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			return nil, ErrEmailAlreadyExists
		}
		return nil, e.fail("register_email_create", err)
	}
	e.metricInc(MetricAccountCreationSuccess)

	token, err := e.actions.IssueToken(actiontoken.PurposeConfirmEmail, u.ID, nil, e.config.Auth.ConfirmEmailExpires)
	if err != nil {
		return nil, e.fail("register_email_token", err, zap.String("user_id", u.ID))
	}
	if err := e.sendMail(ctx, "register_email_mail", u.Email, TemplateConfirmEmail, map[string]string{
		"token": token,
		"email": u.Email,
	}); err != nil {
		return nil, err
	}

	return u, nil
}

// RegisterWithPhone creates an active phone account and logs it in. When
// SMS.RequireForPhoneRegistration is set, in.Code must be a live
// "register" code for the phone.
func (e *Engine) RegisterWithPhone(ctx context.Context, in PhoneRegistration) (*LoginResult, error) {
	phone := normalizePhone(in.Phone)
	if phone == "" || in.Password == "" {
		return nil, ErrInvalidInput
	}
	if e.config.SMS.RequireForPhoneRegistration && in.Code == "" {
		return nil, ErrInvalidCode
	}

	_, exists, err := find(ctx, e.users.FindByPhone, phone)
	if err != nil {
		return nil, e.fail("register_phone_lookup", err)
	}
	if exists {
		e.metricInc(MetricAccountCreationDuplicate)
		return nil, ErrPhoneAlreadyExists
	}

	if e.config.SMS.RequireForPhoneRegistration {
		if err := e.verifyCode(ctx, phone, in.Code, otp.PurposeRegister); err != nil {
			return nil, err
		}
	}

	hash, err := e.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u, err := e.users.Create(ctx, NewUser{
		Phone:        phone,
		PasswordHash: hash,
		Provider:     ProviderPhone,
		Status:       StatusActive,
		RoleID:       RoleUser,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricAccountCreationDuplicate)
			return nil, ErrPhoneAlreadyExists
		}
		return nil, e.fail("register_phone_create", err)
	}
	e.metricInc(MetricAccountCreationSuccess)

	res := flows.RunAccountLogin(ctx, toAccount(u), activeOnly, e.issueDeps())
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginError("register_phone_login", "phone", res, ErrPhoneNotFound, ErrIncorrectPhoneOrPassword)
	}
	return e.loginResult(u, res), nil
}

// ConfirmEmail activates the account a confirm-email token names. The token
// is single-use by state: once the user is active a replay fails with
// invalidHash.
func (e *Engine) ConfirmEmail(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrInvalidInput
	}

	payload, err := e.actions.VerifyToken(token, actiontoken.PurposeConfirmEmail)
	if err != nil {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, actionTokenError(err)
	}

	u, found, err := find(ctx, e.users.FindByID, payload.SubjectID)
	if err != nil {
		return nil, e.fail("confirm_email_lookup", err)
	}
	if !found {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, ErrNotFound
	}
	if u.Status != StatusInactive {
		e.metricInc(MetricEmailConfirmFailure)
		return nil, ErrInvalidHash
	}

	active := StatusActive
	u, err = e.users.Update(ctx, u.ID, UserUpdate{Status: &active})
	if err != nil {
		return nil, e.fail("confirm_email_update", err, zap.String("user_id", payload.SubjectID))
	}

	e.metricInc(MetricEmailConfirmSuccess)
	return u, nil
}
