package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWS algorithm of a Manager.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret (default).
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrExpired wraps the library expiry error so callers can test with errors.Is.
	ErrExpired = jwt.ErrTokenExpired
	// ErrMissingClaims is returned when a token verifies but lacks required claims.
	ErrMissingClaims = errors.New("token missing required claims")
)

// Config describes one signing key and the lifetime of tokens it issues.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// Now overrides the clock for issuance and validation. Nil means time.Now.
	Now func() time.Time
}

// Manager issues and verifies tokens for a single key.
//
// Manager instances are immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
}

// RoleClaim is the nested role object carried by access tokens.
type RoleClaim struct {
	ID int `json:"id"`
}

// AccessClaims is the wire shape of an access token: { id, role: {id}, sessionId }.
type AccessClaims struct {
	ID        string    `json:"id"`
	Role      RoleClaim `json:"role"`
	SessionID string    `json:"sessionId"`
	jwt.RegisteredClaims
}

// RefreshClaims is the wire shape of a refresh token: { sessionId, hash }.
// It deliberately carries no user id or role.
type RefreshClaims struct {
	SessionID string `json:"sessionId"`
	Hash      string `json:"hash"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires a secret")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires a public key")
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	return &Manager{config: cfg}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// CreateAccess issues an access token and returns it with its expiry.
func (m *Manager) CreateAccess(userID string, roleID int, sessionID string) (string, time.Time, error) {
	now := m.config.Now()
	expiresAt := now.Add(m.config.TTL)
	claims := AccessClaims{
		ID:               userID,
		Role:             RoleClaim{ID: roleID},
		SessionID:        sessionID,
		RegisteredClaims: m.registered(now, expiresAt),
	}

	token, err := m.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseAccess verifies signature and expiry of an access token.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.Parse(token, claims); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.SessionID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// CreateRefresh issues a refresh token for a session and its current hash.
func (m *Manager) CreateRefresh(sessionID, hash string) (string, time.Time, error) {
	now := m.config.Now()
	expiresAt := now.Add(m.config.TTL)
	claims := RefreshClaims{
		SessionID:        sessionID,
		Hash:             hash,
		RegisteredClaims: m.registered(now, expiresAt),
	}

	token, err := m.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseRefresh verifies signature and expiry only. Whether the hash is still
// current is decided by the session manager.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.Parse(token, claims); err != nil {
		return nil, err
	}
	if claims.SessionID == "" || claims.Hash == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// Sign serializes and signs arbitrary claims with the manager key.
func (m *Manager) Sign(claims jwt.Claims) (string, error) {
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return jwt.NewWithClaims(m.method(), claims).SignedString(key)
}

// Parse verifies token into claims, enforcing algorithm, expiry, issuer and
// audience. Expired tokens fail with an error matching ErrExpired.
func (m *Manager) Parse(token string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}

func (m *Manager) registered(now, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) method() jwt.SigningMethod {
	if m.config.SigningMethod == MethodEd25519 {
		return jwt.SigningMethodEdDSA
	}
	return jwt.SigningMethodHS256
}

func (m *Manager) signKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		if len(m.config.PrivateKey) == 0 {
			return nil, errors.New("manager has no private key")
		}
		return parseEdPrivateKey(m.config.PrivateKey)
	}
	return m.config.PrivateKey, nil
}

func (m *Manager) verifyKey() (interface{}, error) {
	if m.config.SigningMethod == MethodEd25519 {
		return parseEdPublicKey(m.config.PublicKey)
	}
	return m.config.PrivateKey, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(strings.TrimSpace(string(key))) == 0 {
		return nil, errors.New("missing ed25519 public key")
	}
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
