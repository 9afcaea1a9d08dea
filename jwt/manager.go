package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TypeAccess is the typ claim value carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the typ claim value carried by refresh tokens.
	TypeRefresh = "refresh"

	minSecretBytes = 32
)

var (
	// ErrAccessTokenExpired reports a well-formed access token past its exp.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrRefreshTokenExpired reports a well-formed refresh token past its exp.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrInvalidAccessToken reports a malformed, mis-signed, or mistyped access token.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrInvalidRefreshToken reports a malformed, mis-signed, or mistyped refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Config holds signing secrets, lifetimes, and claim constraints.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// AccessClaims is the payload embedded in access tokens.
type AccessClaims struct {
	UserID      string `json:"uid"`
	Role        string `json:"role"`
	WarehouseID string `json:"wid,omitempty"`
	SessionID   string `json:"sid"`
	TokenType   string `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload embedded in refresh tokens.
type RefreshClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is the artifact returned to callers after login or refresh.
// ExpiresAt refers to the access token.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Manager signs and verifies token pairs. Immutable after construction and
// safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes || len(cfg.RefreshSecret) < minSecretBytes {
		return nil, errors.New("jwt secrets must be >= 32 bytes")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// Payload is the identity snapshot a token pair is minted from.
type Payload struct {
	UserID      string
	Role        string
	WarehouseID string
	SessionID   string
}

// GeneratePair mints a fresh access+refresh token pair for the payload.
func (m *Manager) GeneratePair(p Payload) (TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(m.config.AccessTTL)

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		UserID:      p.UserID,
		Role:        p.Role,
		WarehouseID: p.WarehouseID,
		SessionID:   p.SessionID,
		TokenType:   TypeAccess,
		RegisteredClaims: m.registered(now, accessExpiry),
	})
	accessToken, err := access.SignedString(m.config.AccessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		UserID:    p.UserID,
		SessionID: p.SessionID,
		TokenType: TypeRefresh,
		RegisteredClaims: m.registered(now, now.Add(m.config.RefreshTTL)),
	})
	refreshToken, err := refresh.SignedString(m.config.RefreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessExpiry,
	}, nil
}

// VerifyAccess verifies signature, issuer, audience, and the typ claim of an
// access token.
func (m *Manager) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims, m.config.AccessSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidAccessToken
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// VerifyAccessAllowExpired behaves like VerifyAccess but accepts tokens past
// their deadline. Logout uses it so a stale client can still end its session.
func (m *Manager) VerifyAccessAllowExpired(tokenStr string) (*AccessClaims, error) {
	claims, err := m.VerifyAccess(tokenStr)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, ErrAccessTokenExpired) {
		return nil, err
	}

	claims = &AccessClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.AccessSecret, nil
	}); err != nil {
		return nil, ErrInvalidAccessToken
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// VerifyRefresh verifies signature, issuer, audience, and the typ claim of a
// refresh token.
func (m *Manager) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims, m.config.RefreshSecret); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrRefreshTokenExpired
		}
		return nil, ErrInvalidRefreshToken
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrInvalidRefreshToken
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
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

	parser := jwt.NewParser(options...)
	_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	return err
}

func (m *Manager) registered(now, expires time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}
