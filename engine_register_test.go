package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegisterWithEmailMailsConfirmation(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.registerEmail(t, "Ada@Example.com", "correct-horse")

	if u.Email != "ada@example.com" || u.Provider != ProviderEmail || u.RoleID != RoleUser {
		t.Fatalf("unexpected user %+v", u)
	}
	if u.PasswordHash == "" || u.PasswordHash == "correct-horse" {
		t.Fatalf("password must be stored hashed")
	}

	mail := env.mail.last(t)
	if mail.to != "ada@example.com" || mail.template != TemplateConfirmEmail || mail.data["token"] == "" || mail.data["email"] != "ada@example.com" {
		t.Fatalf("unexpected mail %+v", mail)
	}
}

func TestRegisterWithEmailDuplicate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.registerEmail(t, "ada@example.com", "correct-horse")

	_, err := env.engine.RegisterWithEmail(context.Background(), EmailRegistration{Email: "ADA@example.com", Password: "another-one"})
	expectCode(t, err, ErrEmailAlreadyExists)
	if got := env.counter(MetricAccountCreationDuplicate); got != 1 {
		t.Fatalf("expected 1 duplicate, got %d", got)
	}
}

func TestRegisterWithEmailPasswordPolicy(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.RegisterWithEmail(context.Background(), EmailRegistration{Email: "ada@example.com", Password: "abc"})
	expectCode(t, err, ErrPasswordPolicy)
	if env.users.count() != 0 {
		t.Fatalf("no user may be created on policy failure")
	}
}

func TestRegisterWithEmailMailFailureKeepsUser(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mail.err = errors.New("smtp down")

	_, err := env.engine.RegisterWithEmail(context.Background(), EmailRegistration{Email: "ada@example.com", Password: "correct-horse"})
	expectCode(t, err, ErrInternal)
	if env.users.count() != 1 {
		t.Fatalf("expected the user to remain created, got %d users", env.users.count())
	}
}

func TestConfirmEmailSingleUse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerEmail(t, "ada@example.com", "correct-horse")
	token := env.mail.last(t).data["token"]

	u, err := env.engine.ConfirmEmail(ctx, token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if u.Status != StatusActive {
		t.Fatalf("expected active, got %s", u.Status)
	}

	_, err = env.engine.ConfirmEmail(ctx, token)
	expectCode(t, err, ErrInvalidHash)
}

func TestConfirmEmailRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerEmail(t, "ada@example.com", "correct-horse")
	token := env.mail.last(t).data["token"]

	_, err := env.engine.ConfirmEmail(ctx, token+"x")
	expectCode(t, err, ErrInvalidHash)

	if err := env.engine.ForgotPassword(ctx, "ada@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	_, err = env.engine.ConfirmEmail(ctx, env.mail.last(t).data["token"])
	expectCode(t, err, ErrInvalidHash)

	env.clock.Advance(25 * time.Hour)
	_, err = env.engine.ConfirmEmail(ctx, token)
	expectCode(t, err, ErrTokenExpired)
}

func TestConfirmEmailRemovedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.registerEmail(t, "ada@example.com", "correct-horse")
	token := env.mail.last(t).data["token"]
	if err := env.users.Remove(context.Background(), u.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	_, err := env.engine.ConfirmEmail(context.Background(), token)
	expectCode(t, err, ErrNotFound)
}

func TestRegisterWithPhoneLogsIn(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	res := env.registerPhone(t, " +8613800000020 ", "correct-horse")
	if res.User.Phone != "+8613800000020" || res.User.Status != StatusActive || res.User.Provider != ProviderPhone {
		t.Fatalf("unexpected user %+v", res.User)
	}
	if _, err := env.engine.ValidateAccess(ctx, res.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}

	_, err := env.engine.RegisterWithPhone(ctx, PhoneRegistration{Phone: "+8613800000020", Password: "correct-horse"})
	expectCode(t, err, ErrPhoneAlreadyExists)
}

func TestRegisterWithPhoneRequiresCode(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.SMS.RequireForPhoneRegistration = true
	})
	ctx := context.Background()
	phone := "+8613800000021"

	_, err := env.engine.RegisterWithPhone(ctx, PhoneRegistration{Phone: phone, Password: "correct-horse"})
	expectCode(t, err, ErrInvalidCode)

	_, err = env.engine.RegisterWithPhone(ctx, PhoneRegistration{Phone: phone, Password: "correct-horse", Code: "123"})
	expectCode(t, err, ErrInvalidCode)

	if err := env.engine.SendCode(ctx, phone, OTPRegister); err != nil {
		t.Fatalf("send code: %v", err)
	}
	res, err := env.engine.RegisterWithPhone(ctx, PhoneRegistration{Phone: phone, Password: "correct-horse", Code: env.sms.code(t, phone, OTPRegister)})
	if err != nil {
		t.Fatalf("register with code: %v", err)
	}
	if res.User.Phone != phone {
		t.Fatalf("unexpected user %+v", res.User)
	}
}

func TestChangeEmailFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.registerEmail(t, "ada@example.com", "correct-horse")
	env.registerEmail(t, "taken@example.com", "correct-horse")
	p := Principal{UserID: u.ID}

	expectCode(t, env.engine.ChangeEmail(ctx, p, "taken@example.com"), ErrEmailAlreadyExists)

	if err := env.engine.ChangeEmail(ctx, p, "New@Example.com"); err != nil {
		t.Fatalf("change email: %v", err)
	}
	mail := env.mail.last(t)
	if mail.to != "new@example.com" || mail.template != TemplateConfirmNewEmail {
		t.Fatalf("unexpected mail %+v", mail)
	}

	updated, err := env.engine.ConfirmNewEmail(ctx, mail.data["token"])
	if err != nil {
		t.Fatalf("confirm new email: %v", err)
	}
	if updated.Email != "new@example.com" || updated.Status != StatusActive {
		t.Fatalf("unexpected user %+v", updated)
	}

	_, err = env.engine.ConfirmNewEmail(ctx, mail.data["token"])
	expectCode(t, err, ErrInvalidHash)

	if _, err := env.engine.LoginWithEmail(ctx, "new@example.com", "correct-horse"); err != nil {
		t.Fatalf("login with new email: %v", err)
	}
}

func TestChangeEmailRequiresEmailAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	res := env.registerPhone(t, "+8613800000022", "correct-horse")

	err := env.engine.ChangeEmail(context.Background(), Principal{UserID: res.User.ID}, "ada@example.com")
	expectCode(t, err, ErrNeedLoginViaProvider)
}
