package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// State names the lifecycle position of a presented token. Transitions are
// pure: each one has a single precondition and returns the claims to emit,
// so the middleware never depends on flag-checking order.
type State int

const (
	// StateTrusted: the check interval has not elapsed; claims pass through.
	StateTrusted State = iota
	// StateChecking: the interval elapsed; the device session must be
	// confirmed before the claims are honored.
	StateChecking
	// StateRevoked: the backing session is gone (or the check failed).
	// There is no path back to Trusted; the client must re-authenticate.
	StateRevoked
	// StateSignedOut: an explicit sign-out event cleared the claims.
	StateSignedOut
)

// Evaluate classifies presented claims. Unauthenticated (empty) claims are
// already revoked; otherwise the only question is whether the re-check
// interval has elapsed.
func (m *Manager) Evaluate(c *Claims) State {
	if !c.Authenticated() {
		return StateRevoked
	}
	last := time.Unix(c.LastSessionCheck, 0)
	if m.now().Sub(last) < m.checkInterval {
		return StateTrusted
	}
	return StateChecking
}

// ConfirmCheck transitions Checking back to Trusted after the device session
// was found live. It re-stamps LastSessionCheck and returns a re-signed
// token carrying otherwise identical claims.
func (m *Manager) ConfirmCheck(c *Claims) (string, *Claims, error) {
	now := m.now()
	refreshed := *c
	refreshed.LastSessionCheck = now.Unix()
	refreshed.IssuedAt = jwt.NewNumericDate(now)
	refreshed.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	signed, err := m.sign(&refreshed)
	if err != nil {
		return "", nil, err
	}
	return signed, &refreshed, nil
}

// Revoke transitions to Revoked: an empty claim set with an already-expired
// validity window, so any session object derived from it presents no
// authenticated user.
func (m *Manager) Revoke() *Claims {
	past := m.now().Add(-time.Hour)
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(past),
		},
	}
}

// PatchIdentity is the one allowed mutation outside the check cycle: display
// claims change (profile rename, role change) without touching the session
// identifier or the check clock.
func (m *Manager) PatchIdentity(c *Claims, id Identity) (string, *Claims, error) {
	patched := *c
	patched.Email = id.Email
	patched.Name = id.Name
	patched.Role = id.Role
	signed, err := m.sign(&patched)
	if err != nil {
		return "", nil, err
	}
	return signed, &patched, nil
}
