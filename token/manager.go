package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid is the uniform validation failure for malformed, mis-signed,
// and expired assertions.
var ErrInvalid = errors.New("invalid token")

// Config controls signing. Secret is the single process-wide HMAC key.
type Config struct {
	Secret     []byte
	SessionTTL time.Duration
	PendingTTL time.Duration
	Issuer     string
	Leeway     time.Duration
}

// Identity is the claim set an assertion asserts.
type Identity struct {
	UserID   string
	IsAdmin  bool
	UserType string
}

// Claims is the wire shape of both assertion kinds. Pending is serialized
// as "temp" and omitted from full sessions.
type Claims struct {
	UserID   string `json:"user_id"`
	IsAdmin  bool   `json:"is_admin"`
	UserType string `json:"user_type"`
	Pending  bool   `json:"temp,omitempty"`
	jwt.RegisteredClaims
}

// Identity extracts the identity fields from validated claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, IsAdmin: c.IsAdmin, UserType: c.UserType}
}

// Manager signs and validates assertions. Immutable after NewManager.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("hs256 requires a signing secret")
	}
	if cfg.SessionTTL <= 0 || cfg.PendingTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a full session assertion expiring SessionTTL from now.
func (m *Manager) Issue(id Identity) (string, error) {
	return m.sign(id, false, m.config.SessionTTL)
}

// IssuePending signs a pending second-factor assertion expiring PendingTTL
// from now. Parse accepts it, but callers must check Claims.Pending before
// treating it as a session.
func (m *Manager) IssuePending(id Identity) (string, error) {
	return m.sign(id, true, m.config.PendingTTL)
}

func (m *Manager) sign(id Identity, pending bool, ttl time.Duration) (string, error) {
	if m == nil {
		return "", errors.New("token manager not initialized")
	}
	now := time.Now()
	claims := Claims{
		UserID:   id.UserID,
		IsAdmin:  id.IsAdmin,
		UserType: id.UserType,
		Pending:  pending,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// Parse validates signature, issuer, and expiry, returning the claims.
// Every failure collapses to [ErrInvalid].
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	if m == nil {
		return nil, ErrInvalid
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
