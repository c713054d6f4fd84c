package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/otp"
)

// LoginWithEmail authenticates an email account by password. Unconfirmed
// (inactive) accounts may log in.
func (e *Engine) LoginWithEmail(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	res := flows.RunPasswordLogin(ctx, flows.PasswordLoginRequest{
		Identifier:    email,
		Password:      password,
		Provider:      string(ProviderEmail),
		StatusAllowed: emailLoginStatus,
	}, e.loginDeps(e.users.FindByEmail))
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginError("login_email", "email", res, ErrEmailNotExists, ErrIncorrectPassword)
	}

	return e.finishLogin(ctx, "login_email", res)
}

// LoginWithPhone authenticates a phone account by password. The account
// must be active.
func (e *Engine) LoginWithPhone(ctx context.Context, phone, password string) (*LoginResult, error) {
	phone = normalizePhone(phone)
	if phone == "" || password == "" {
		return nil, ErrInvalidInput
	}

	res := flows.RunPasswordLogin(ctx, flows.PasswordLoginRequest{
		Identifier:    phone,
		Password:      password,
		Provider:      string(ProviderPhone),
		StatusAllowed: activeOnly,
	}, e.loginDeps(e.users.FindByPhone))
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginError("login_phone", "phone", res, ErrIncorrectPhoneOrPassword, ErrIncorrectPhoneOrPassword)
	}

	return e.finishLogin(ctx, "login_phone", res)
}

// LoginWithPhoneCode authenticates by a "login" OTP. The code is consumed
// before the user is looked up.
func (e *Engine) LoginWithPhoneCode(ctx context.Context, phone, code string) (*LoginResult, error) {
	phone = normalizePhone(phone)
	if phone == "" || code == "" {
		return nil, ErrInvalidInput
	}
	if err := e.verifyCode(ctx, phone, code, otp.PurposeLogin); err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	u, found, err := find(ctx, e.users.FindByPhone, phone)
	if err != nil {
		return nil, e.fail("login_phone_code", err)
	}
	if !found {
		e.metricInc(MetricLoginFailure)
		return nil, ErrPhoneNotFound
	}
	if u.Provider != ProviderPhone {
		e.metricInc(MetricLoginFailure)
		return nil, needLoginVia(u.Provider)
	}

	res := flows.RunAccountLogin(ctx, toAccount(u), activeOnly, e.issueDeps())
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginError("login_phone_code", "phone", res, ErrPhoneNotFound, ErrInvalidCode)
	}
	return e.loginResult(u, res), nil
}

// LoginWithWechat exchanges an OAuth code for an identity and logs the
// bound user in, creating an active account on first sight.
func (e *Engine) LoginWithWechat(ctx context.Context, code string) (*LoginResult, error) {
	if code == "" {
		return nil, ErrInvalidInput
	}
	if e.oauth == nil {
		return nil, ErrFeatureUnavailable
	}

	identity, err := e.oauth.Exchange(ctx, code)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, e.fail("login_wechat_exchange", err)
	}
	if identity.ExternalID == "" {
		e.metricInc(MetricLoginFailure)
		return nil, e.fail("login_wechat_exchange", errors.New("empty external id"))
	}

	u, err := e.findOrCreateExternal(ctx, identity)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return nil, err
	}
	if u.Provider != ProviderWechat {
		e.metricInc(MetricLoginFailure)
		return nil, needLoginVia(u.Provider)
	}

	res := flows.RunAccountLogin(ctx, toAccount(u), notBlocked, e.issueDeps())
	if res.Failure != flows.LoginFailureNone {
		return nil, e.loginError("login_wechat", "code", res, ErrNotFound, ErrInvalidCode)
	}
	return e.loginResult(u, res), nil
}

func (e *Engine) findOrCreateExternal(ctx context.Context, identity ExternalIdentity) (*User, error) {
	u, found, err := find(ctx, e.users.FindByExternalID, identity.ExternalID)
	if err != nil {
		return nil, e.fail("login_wechat_lookup", err)
	}
	if found {
		return u, nil
	}

	u, err = e.users.Create(ctx, NewUser{
		WechatOpenID: identity.ExternalID,
		Provider:     ProviderWechat,
		Status:       StatusActive,
		RoleID:       RoleUser,
		FirstName:    identity.Profile.Nickname,
	})
	if err == nil {
		e.metricInc(MetricAccountCreationSuccess)
		e.logger.Info("wechat account created", zap.String("user_id", u.ID))
		return u, nil
	}
	if !errors.Is(err, ErrUserExists) {
		return nil, e.fail("login_wechat_create", err)
	}

	// Lost a creation race with a concurrent first login.
	u, found, err = find(ctx, e.users.FindByExternalID, identity.ExternalID)
	if err != nil {
		return nil, e.fail("login_wechat_lookup", err)
	}
	if !found {
		return nil, e.fail("login_wechat_create", errors.New("external identity conflict without a bound user"))
	}
	return u, nil
}

// finishLogin loads the full user record behind a successful password login.
func (e *Engine) finishLogin(ctx context.Context, op string, res flows.LoginResult) (*LoginResult, error) {
	u, found, err := find(ctx, e.users.FindByID, res.Account.ID)
	if err != nil || !found {
		if err == nil {
			err = errors.New("user vanished during login")
		}
		_ = e.sessions.Revoke(ctx, res.SessionID)
		return nil, e.fail(op, err, zap.String("user_id", res.Account.ID))
	}
	return e.loginResult(u, res), nil
}
