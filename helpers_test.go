package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/cache"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_800_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryDirectory is an in-process UserDirectory.
type memoryDirectory struct {
	mu     sync.Mutex
	users  map[string]*User
	seq    int
	now    func() time.Time
	err    error
	lookup int
}

func newMemoryDirectory(now func() time.Time) *memoryDirectory {
	return &memoryDirectory{users: map[string]*User{}, now: now}
}

func (d *memoryDirectory) findBy(match func(*User) bool) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookup++
	if d.err != nil {
		return nil, d.err
	}
	for _, u := range d.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, id string) (*User, error) {
	return d.findBy(func(u *User) bool { return u.ID == id })
}

func (d *memoryDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	return d.findBy(func(u *User) bool { return email != "" && u.Email == email })
}

func (d *memoryDirectory) FindByPhone(_ context.Context, phone string) (*User, error) {
	return d.findBy(func(u *User) bool { return phone != "" && u.Phone == phone })
}

func (d *memoryDirectory) FindByExternalID(_ context.Context, externalID string) (*User, error) {
	return d.findBy(func(u *User) bool { return externalID != "" && u.WechatOpenID == externalID })
}

func (d *memoryDirectory) taken(id string, email, phone, openID string) bool {
	for _, u := range d.users {
		if u.ID == id {
			continue
		}
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) || (openID != "" && u.WechatOpenID == openID) {
			return true
		}
	}
	return false
}

func (d *memoryDirectory) Create(_ context.Context, in NewUser) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if d.taken("", in.Email, in.Phone, in.WechatOpenID) {
		return nil, ErrUserExists
	}

	d.seq++
	now := d.now()
	u := &User{
		ID:           fmt.Sprintf("u-%d", d.seq),
		Email:        in.Email,
		Phone:        in.Phone,
		WechatOpenID: in.WechatOpenID,
		PasswordHash: in.PasswordHash,
		Provider:     in.Provider,
		Status:       in.Status,
		RoleID:       in.RoleID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	d.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (d *memoryDirectory) Update(_ context.Context, id string, in UserUpdate) (*User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	if in.Email != nil && d.taken(id, *in.Email, "", "") {
		return nil, ErrUserExists
	}

	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.PasswordHash != nil {
		u.PasswordHash = *in.PasswordHash
	}
	if in.Status != nil {
		u.Status = *in.Status
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	u.UpdatedAt = d.now()
	cp := *u
	return &cp, nil
}

func (d *memoryDirectory) Remove(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[id]; !ok {
		return ErrUserNotFound
	}
	delete(d.users, id)
	return nil
}

func (d *memoryDirectory) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// seed stores u as-is, bypassing uniqueness checks.
func (d *memoryDirectory) seed(u User) *User {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	if u.ID == "" {
		u.ID = fmt.Sprintf("u-%d", d.seq)
	}
	u.CreatedAt, u.UpdatedAt = d.now(), d.now()
	d.users[u.ID] = &u
	cp := u
	return &cp
}

type sentMail struct {
	to       string
	template string
	data     map[string]string
}

type fakeMail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMail) Send(_ context.Context, to, template string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, template: template, data: data})
	return nil
}

func (m *fakeMail) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatalf("expected a mail to be sent")
	}
	return m.sent[len(m.sent)-1]
}

type fakeSMS struct {
	mu    sync.Mutex
	codes map[string]string
	sends int
	err   error
}

func (s *fakeSMS) Send(_ context.Context, phone string, params map[string]string) (SmsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return SmsResult{}, s.err
	}
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[params["purpose"]+":"+phone] = params["code"]
	s.sends++
	return SmsResult{Success: true, Message: "ok"}, nil
}

func (s *fakeSMS) code(t *testing.T, phone string, purpose OTPPurpose) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[string(purpose)+":"+phone]
	if !ok {
		t.Fatalf("no code delivered to %s for %s", phone, purpose)
	}
	return code
}

type fakeOAuth struct {
	identities map[string]ExternalIdentity
}

func (o *fakeOAuth) Exchange(_ context.Context, code string) (ExternalIdentity, error) {
	id, ok := o.identities[code]
	if !ok {
		return ExternalIdentity{}, errors.New("unknown code")
	}
	return id, nil
}

type testEnv struct {
	engine *Engine
	users  *memoryDirectory
	mail   *fakeMail
	sms    *fakeSMS
	oauth  *fakeOAuth
	clock  *testClock
	redis  *miniredis.Miniredis
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Auth.JWTSecret = "access-secret-0123456789abcdef"
	cfg.Auth.RefreshSecret = "refresh-secret-0123456789abcdef"
	cfg.Auth.ConfirmEmailSecret = "confirm-secret-0123456789abcdef"
	cfg.Auth.ForgotSecret = "forgot-secret-0123456789abcdef"
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		mail:  &fakeMail{},
		sms:   &fakeSMS{},
		oauth: &fakeOAuth{identities: map[string]ExternalIdentity{}},
		clock: newTestClock(),
		redis: mr,
	}
	env.users = newMemoryDirectory(env.clock.Now)

	env.engine, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserDirectory(env.users).
		WithCache(cache.NewMemory(env.clock.Now)).
		WithMailDispatcher(env.mail).
		WithSmsGateway(env.sms).
		WithOAuthProvider(env.oauth).
		WithClock(env.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return env
}

func (env *testEnv) registerEmail(t *testing.T, email, password string) *User {
	t.Helper()
	u, err := env.engine.RegisterWithEmail(context.Background(), EmailRegistration{Email: email, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return u
}

func (env *testEnv) registerPhone(t *testing.T, phone, password string) *LoginResult {
	t.Helper()
	res, err := env.engine.RegisterWithPhone(context.Background(), PhoneRegistration{Phone: phone, Password: password})
	if err != nil {
		t.Fatalf("register %s: %v", phone, err)
	}
	return res
}

func (env *testEnv) counter(id MetricID) uint64 {
	return env.engine.MetricsSnapshot().Counters[id]
}

func expectCode(t *testing.T, err error, want *Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}
