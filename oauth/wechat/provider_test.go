package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, fetchProfile bool) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(Config{AppID: "app", AppSecret: "secret", BaseURL: srv.URL, FetchProfile: fetchProfile}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return p
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestExchangeReturnsOpenIDAndProfile(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sns/oauth2/access_token":
			q := r.URL.Query()
			assert.Equal(t, "app", q.Get("appid"))
			assert.Equal(t, "secret", q.Get("secret"))
			assert.Equal(t, "the-code", q.Get("code"))
			assert.Equal(t, "authorization_code", q.Get("grant_type"))
			writeJSON(w, map[string]any{"access_token": "at", "expires_in": 7200, "openid": "openid-1", "scope": "snsapi_userinfo"})
		case "/sns/userinfo":
			assert.Equal(t, "at", r.URL.Query().Get("access_token"))
			assert.Equal(t, "openid-1", r.URL.Query().Get("openid"))
			writeJSON(w, map[string]any{"openid": "openid-1", "nickname": "Ada", "headimgurl": "https://img/1"})
		default:
			http.NotFound(w, r)
		}
	}, true)

	identity, err := p.Exchange(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "openid-1", identity.ExternalID)
	assert.Equal(t, "Ada", identity.Profile.Nickname)
	assert.Equal(t, "https://img/1", identity.Profile.AvatarURL)
}

func TestExchangeRejectedCode(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"errcode": 40029, "errmsg": "invalid code"})
	}, true)

	_, err := p.Exchange(context.Background(), "bad")
	require.ErrorIs(t, err, ErrExchange)
	assert.Contains(t, err.Error(), "40029")
}

func TestExchangeHTTPFailure(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, false)

	_, err := p.Exchange(context.Background(), "code")
	assert.ErrorIs(t, err, ErrExchange)
}

func TestExchangeProfileFailureKeepsIdentity(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sns/userinfo" {
			writeJSON(w, map[string]any{"errcode": 48001, "errmsg": "api unauthorized"})
			return
		}
		writeJSON(w, map[string]any{"access_token": "at", "openid": "openid-2"})
	}, true)

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "openid-2", identity.ExternalID)
	assert.Empty(t, identity.Profile.Nickname)
}

func TestExchangeWithoutProfileSkipsUserInfo(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/sns/oauth2/access_token", r.URL.Path)
		writeJSON(w, map[string]any{"access_token": "at", "openid": "openid-3"})
	}, false)

	identity, err := p.Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, "openid-3", identity.ExternalID)
	assert.Equal(t, 1, calls)
}

func TestExchangeEmptyCode(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}, false)

	_, err := p.Exchange(context.Background(), " ")
	assert.ErrorIs(t, err, ErrExchange)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{AppID: "app"})
	assert.Error(t, err)
}
