package token

import (
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(testSecret, time.Hour, 15*time.Second)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRejectsWeakConfig(t *testing.T) {
	if _, err := NewManager("short", time.Hour, time.Second); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := NewManager(testSecret, 0, time.Second); err == nil {
		t.Fatal("expected error for zero ttl")
	}
	if _, err := NewManager(testSecret, time.Hour, 0); err == nil {
		t.Fatal("expected error for zero check interval")
	}
}

func TestIssueParseRoundTrip(t *testing.T) {
	m := testManager(t)

	id := Identity{UserID: "u1", Email: "a@b.com", Name: "Alice", Role: "admin"}
	signed, err := m.Issue(id, "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !claims.Authenticated() {
		t.Fatal("expected authenticated claims")
	}
	if claims.SessionID != "sess-1" || claims.UserID != "u1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.LastSessionCheck == 0 {
		t.Fatal("expected LastSessionCheck to be stamped at issuance")
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := testManager(t)
	other, err := NewManager("ffffffffffffffffffffffffffffffff", time.Hour, 15*time.Second)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	signed, err := other.Issue(Identity{UserID: "u1"}, "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := m.Parse(signed); err == nil {
		t.Fatal("expected signature mismatch to fail")
	}
}

func TestEvaluateStates(t *testing.T) {
	m := testManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, err := m.Issue(Identity{UserID: "u1"}, "sess-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	claims, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if got := m.Evaluate(claims); got != StateTrusted {
		t.Fatalf("fresh token: expected StateTrusted, got %d", got)
	}

	// 14s later still inside the window, 15s on the boundary means re-check.
	m.now = func() time.Time { return base.Add(14 * time.Second) }
	if got := m.Evaluate(claims); got != StateTrusted {
		t.Fatalf("14s: expected StateTrusted, got %d", got)
	}
	m.now = func() time.Time { return base.Add(15 * time.Second) }
	if got := m.Evaluate(claims); got != StateChecking {
		t.Fatalf("15s: expected StateChecking, got %d", got)
	}

	if got := m.Evaluate(m.Revoke()); got != StateRevoked {
		t.Fatalf("revoked claims: expected StateRevoked, got %d", got)
	}
	if got := m.Evaluate(nil); got != StateRevoked {
		t.Fatalf("nil claims: expected StateRevoked, got %d", got)
	}
}

func TestConfirmCheckRestampsClock(t *testing.T) {
	m := testManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, _ := m.Issue(Identity{UserID: "u1"}, "sess-1")
	claims, _ := m.Parse(signed)

	m.now = func() time.Time { return base.Add(20 * time.Second) }
	refreshedToken, refreshed, err := m.ConfirmCheck(claims)
	if err != nil {
		t.Fatalf("ConfirmCheck failed: %v", err)
	}
	if refreshed.LastSessionCheck != base.Add(20*time.Second).Unix() {
		t.Fatal("expected LastSessionCheck to be restamped")
	}
	if refreshed.SessionID != claims.SessionID {
		t.Fatal("ConfirmCheck must not change the session identifier")
	}
	if got := m.Evaluate(refreshed); got != StateTrusted {
		t.Fatalf("after confirm: expected StateTrusted, got %d", got)
	}

	parsed, err := m.Parse(refreshedToken)
	if err != nil {
		t.Fatalf("Parse of refreshed token failed: %v", err)
	}
	if parsed.LastSessionCheck != refreshed.LastSessionCheck {
		t.Fatal("signed token does not carry the refreshed clock")
	}
}

func TestRevokePresentsNoUser(t *testing.T) {
	m := testManager(t)

	revoked := m.Revoke()
	if revoked.Authenticated() {
		t.Fatal("revoked claims must not present an authenticated user")
	}
	if !revoked.ExpiresAt.Time.Before(time.Now()) {
		t.Fatal("revoked claims must carry an already-expired validity window")
	}
}

func TestPatchIdentityKeepsSessionAndClock(t *testing.T) {
	m := testManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	signed, _ := m.Issue(Identity{UserID: "u1", Name: "Old Name", Role: "user"}, "sess-1")
	claims, _ := m.Parse(signed)

	patchedToken, patched, err := m.PatchIdentity(claims, Identity{
		UserID: "u1", Email: "new@b.com", Name: "New Name", Role: "user",
	})
	if err != nil {
		t.Fatalf("PatchIdentity failed: %v", err)
	}
	if patched.Name != "New Name" || patched.Email != "new@b.com" {
		t.Fatalf("display claims not patched: %+v", patched)
	}
	if patched.SessionID != claims.SessionID {
		t.Fatal("patch must not touch the session identifier")
	}
	if patched.LastSessionCheck != claims.LastSessionCheck {
		t.Fatal("patch must not touch the check clock")
	}

	if _, err := m.Parse(patchedToken); err != nil {
		t.Fatalf("patched token failed to parse: %v", err)
	}
}
