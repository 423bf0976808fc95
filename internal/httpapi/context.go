package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/helioshop/helioshop/internal/token"
)

type contextKey int

const claimsKey contextKey = iota

// withClaims stores validated claims on the request context.
func withClaims(ctx context.Context, c *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// claimsFrom returns the authenticated claims, or nil for an anonymous or
// revoked request.
func claimsFrom(ctx context.Context) *token.Claims {
	c, _ := ctx.Value(claimsKey).(*token.Claims)
	if c == nil || !c.Authenticated() {
		return nil
	}
	return c
}

// clientIP prefers the first X-Forwarded-For entry (set by the fronting
// proxy) and falls back to the socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func userAgent(r *http.Request) string {
	return r.Header.Get("User-Agent")
}

// bearerToken extracts the token from the Authorization header, empty if
// absent or malformed.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
