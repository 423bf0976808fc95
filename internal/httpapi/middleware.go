package httpapi

import (
	"log"
	"net/http"

	"github.com/helioshop/helioshop/internal/model"
	"github.com/helioshop/helioshop/internal/token"
)

// Response headers the session middleware uses to talk to the client.
const (
	// HeaderSessionToken carries a re-signed token after a confirmed check
	// or a profile patch. Clients replace their stored token when present.
	HeaderSessionToken = "X-Session-Token"
	// HeaderSessionRevoked tells the client its session is gone and local
	// token storage should be cleared.
	HeaderSessionRevoked = "X-Session-Revoked"
)

// sessionMiddleware runs the token lifecycle on every request. A trusted
// token passes through; one past its check interval is confirmed against the
// session store, fail-closed: a missing record or a store error both revoke.
func (a *API) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.tokens.Parse(raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		switch a.tokens.Evaluate(claims) {
		case token.StateTrusted:
			r = r.WithContext(withClaims(r.Context(), claims))

		case token.StateChecking:
			ok, err := a.sessions.Exists(r.Context(), claims.SessionID)
			if err != nil {
				log.Printf("httpapi: session check for %s failed, revoking: %v", claims.SessionID, err)
			}
			if err != nil || !ok {
				w.Header().Set(HeaderSessionRevoked, "true")
				break
			}
			refreshed, confirmed, err := a.tokens.ConfirmCheck(claims)
			if err != nil {
				log.Printf("httpapi: token re-sign failed, revoking: %v", err)
				w.Header().Set(HeaderSessionRevoked, "true")
				break
			}
			w.Header().Set(HeaderSessionToken, refreshed)
			r = r.WithContext(withClaims(r.Context(), confirmed))

		default: // revoked
			w.Header().Set(HeaderSessionRevoked, "true")
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth rejects requests that carry no live authenticated claims.
func requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// requireAdmin rejects non-admin callers.
func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return requireAuth(func(w http.ResponseWriter, r *http.Request) {
		if claimsFrom(r.Context()).Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next(w, r)
	})
}
