// Package token issues and validates the signed session token a browser
// holds between requests. The token embeds the user's display identity and
// the device-session identifier it is correlated with; whether the token is
// still honored is decided by the lifecycle in this package, not by the JWT
// expiry alone.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid covers malformed, mis-signed, and expired tokens.
	ErrTokenInvalid = errors.New("invalid session token")
)

// Identity is the display subset of a user embedded in the token.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// Claims is the token payload. LastSessionCheck gates how often the
// middleware re-validates the device session against the store.
type Claims struct {
	UserID           string `json:"uid,omitempty"`
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
	Role             string `json:"role,omitempty"`
	SessionID        string `json:"sid,omitempty"`
	LastSessionCheck int64  `json:"lsc,omitempty"`
	jwt.RegisteredClaims
}

// Authenticated reports whether the claims carry a usable identity. Revoked
// tokens are emptied, so this is the single check every consumer needs.
func (c *Claims) Authenticated() bool {
	return c != nil && c.UserID != "" && c.SessionID != ""
}

// Identity extracts the display identity from the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID: c.UserID,
		Email:  c.Email,
		Name:   c.Name,
		Role:   c.Role,
	}
}

// Manager signs and parses session tokens with HS256.
type Manager struct {
	secret        []byte
	ttl           time.Duration
	checkInterval time.Duration
	issuer        string
	now           func() time.Time
}

// NewManager validates the signing configuration and returns a Manager.
func NewManager(secret string, ttl, checkInterval time.Duration) (*Manager, error) {
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	if ttl <= 0 || checkInterval <= 0 {
		return nil, errors.New("invalid token ttl or check interval")
	}
	return &Manager{
		secret:        []byte(secret),
		ttl:           ttl,
		checkInterval: checkInterval,
		issuer:        "helioshop",
		now:           time.Now,
	}, nil
}

// Issue creates a fresh token for a newly authenticated device session.
// LastSessionCheck is set to issuance time so the very next request does not
// immediately re-check the store.
func (m *Manager) Issue(id Identity, sessionID string) (string, error) {
	now := m.now()
	return m.sign(&Claims{
		UserID:           id.UserID,
		Email:            id.Email,
		Name:             id.Name,
		Role:             id.Role,
		SessionID:        sessionID,
		LastSessionCheck: now.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
}

// Parse validates signature, algorithm, issuer, and expiry, and returns the
// decoded claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}

func (m *Manager) sign(claims *Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}
