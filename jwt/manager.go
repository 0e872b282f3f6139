package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the algorithm used to sign access tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 using PrivateKey as the shared secret.
	MethodHS256 SigningMethod = "hs256"
)

// Config holds signing and verification settings for a [Manager].
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and verifies access tokens. It is safe for concurrent use.
type Manager struct {
	config Config
	method jwt.SigningMethod
	sign   any
	verify keyring
}

// keyring maps a kid to its verification key. The "" entry is used when tokens carry no kid.
type keyring map[string]any

var (
	ErrMissingKID = errors.New("token has no kid")
	ErrUnknownKID = errors.New("token kid is not trusted")
)

// AccessClaims is the payload of an access token issued to a portal user.
type AccessClaims struct {
	UserID     string `json:"userId"`
	VendorID   string `json:"vendorId,omitempty"`
	PortalType string `json:"portalType"`
	SessionID  string `json:"sid"`
	jwt.RegisteredClaims
}

// Subject identifies who an access token is issued for.
type Subject struct {
	UserID     string
	VendorID   string
	PortalType string
	SessionID  string
}

// NewManager validates cfg, resolves its keys and returns a Manager ready to sign and
// verify tokens.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, errors.New("access TTL must be positive")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("max future iat must be within (0, 24h]")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, verify: keyring{}}
	var (
		decode func([]byte) (any, error)
		err    error
	)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 needs a shared secret in PrivateKey")
		}
		m.method = jwt.SigningMethodHS256
		m.sign = cfg.PrivateKey
		decode = func(b []byte) (any, error) { return b, nil }
		m.verify[""] = cfg.PrivateKey
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			if m.sign, err = parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
		if len(cfg.PublicKey) > 0 {
			if m.verify[""], err = decode(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 needs PublicKey or VerifyKeys")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		// An explicit key set replaces the default key: every token must name its kid.
		m.verify = keyring{}
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify keys contain an empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			m.verify[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := m.verify[cfg.KeyID]; !ok {
				return nil, fmt.Errorf("KeyID %q missing from VerifyKeys", cfg.KeyID)
			}
		}
	} else if cfg.KeyID != "" {
		m.verify = keyring{cfg.KeyID: m.verify[""]}
	}
	return m, nil
}

// AccessTTL reports the lifetime stamped on new access tokens.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs an access token for sub that expires after the configured TTL.
func (m *Manager) CreateAccess(sub Subject) (string, error) {
	return m.CreateAccessWithTTL(sub, m.config.AccessTTL)
}

// CreateAccessWithTTL is CreateAccess with an explicit lifetime.
func (m *Manager) CreateAccessWithTTL(sub Subject, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("access TTL must be positive")
	}
	if m.sign == nil {
		return "", errors.New("manager has no signing key")
	}

	now := time.Now()
	claims := AccessClaims{
		UserID:     sub.UserID,
		VendorID:   sub.VendorID,
		PortalType: sub.PortalType,
		SessionID:  sub.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.sign)
}

// ParseAccess verifies tokenStr and returns its claims.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, err := jwt.NewParser(m.parserOptions()...).ParseWithClaims(tokenStr, claims, m.keyFor); err != nil {
		return nil, err
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(time.Now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("token issued too far in the future")
	}
	return claims, nil
}

func (m *Manager) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{m.method.Alg()})}
	if m.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.Audience))
	}
	return opts
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if key, ok := m.verify[kid]; ok {
		return key, nil
	}
	if kid == "" {
		return nil, ErrMissingKID
	}
	return nil, ErrUnknownKID
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
