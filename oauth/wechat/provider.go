package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/authcore"
)

const defaultBaseURL = "https://api.weixin.qq.com"

var _ authcore.OAuthProvider = (*Provider)(nil)

// ErrExchange is returned when WeChat rejects the code or answers with
// something unusable.
var ErrExchange = errors.New("wechat: code exchange failed")

// Config holds the WeChat application credentials.
type Config struct {
	AppID     string `env:"WECHAT_APP_ID"`
	AppSecret string `env:"WECHAT_APP_SECRET"`
	// BaseURL overrides the API host.
	BaseURL string        `env:"WECHAT_BASE_URL" envDefault:"https://api.weixin.qq.com"`
	Timeout time.Duration `env:"WECHAT_TIMEOUT" envDefault:"5s"`
	// FetchProfile enables the sns/userinfo call. It needs the
	// snsapi_userinfo scope.
	FetchProfile bool `env:"WECHAT_FETCH_PROFILE" envDefault:"true"`
}

// Provider talks to the WeChat open platform.
type Provider struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New validates cfg and returns a Provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errors.New("wechat: app id and secret are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	p := &Provider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// apiError is the error envelope WeChat returns with HTTP 200.
type apiError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type tokenResponse struct {
	apiError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	Scope        string `json:"scope"`
	UnionID      string `json:"unionid"`
}

type userInfoResponse struct {
	apiError
	OpenID     string `json:"openid"`
	Nickname   string `json:"nickname"`
	HeadImgURL string `json:"headimgurl"`
}

// Exchange resolves code to the user's openid and, when enabled, profile.
func (p *Provider) Exchange(ctx context.Context, code string) (authcore.ExternalIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return authcore.ExternalIdentity{}, fmt.Errorf("%w: empty code", ErrExchange)
	}

	query := url.Values{}
	query.Set("appid", p.cfg.AppID)
	query.Set("secret", p.cfg.AppSecret)
	query.Set("code", code)
	query.Set("grant_type", "authorization_code")

	var token tokenResponse
	if err := p.get(ctx, "/sns/oauth2/access_token", query, &token); err != nil {
		return authcore.ExternalIdentity{}, err
	}
	if token.ErrCode != 0 {
		return authcore.ExternalIdentity{}, fmt.Errorf("%w: errcode %d: %s", ErrExchange, token.ErrCode, token.ErrMsg)
	}
	if token.OpenID == "" || token.AccessToken == "" {
		return authcore.ExternalIdentity{}, fmt.Errorf("%w: missing openid", ErrExchange)
	}

	identity := authcore.ExternalIdentity{ExternalID: token.OpenID}
	if !p.cfg.FetchProfile {
		return identity, nil
	}

	profile, err := p.userInfo(ctx, token.AccessToken, token.OpenID)
	if err != nil {
		p.logger.Warn("wechat userinfo failed", zap.Error(err))
		return identity, nil
	}
	identity.Profile = profile
	return identity, nil
}

func (p *Provider) userInfo(ctx context.Context, accessToken, openID string) (authcore.ExternalProfile, error) {
	query := url.Values{}
	query.Set("access_token", accessToken)
	query.Set("openid", openID)

	var info userInfoResponse
	if err := p.get(ctx, "/sns/userinfo", query, &info); err != nil {
		return authcore.ExternalProfile{}, err
	}
	if info.ErrCode != 0 {
		return authcore.ExternalProfile{}, fmt.Errorf("userinfo errcode %d: %s", info.ErrCode, info.ErrMsg)
	}
	if info.OpenID != "" && info.OpenID != openID {
		return authcore.ExternalProfile{}, errors.New("userinfo openid mismatch")
	}
	return authcore.ExternalProfile{Nickname: info.Nickname, AvatarURL: info.HeadImgURL}, nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExchange, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrExchange, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrExchange, err)
	}
	return nil
}
