// Package httpapi exposes the auth and session-administration surface over
// gorilla/mux. The session middleware in this package is where the token
// lifecycle meets the device-session store.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/helioshop/helioshop/internal/auth"
	"github.com/helioshop/helioshop/internal/model"
	"github.com/helioshop/helioshop/internal/session"
	"github.com/helioshop/helioshop/internal/token"
	"github.com/helioshop/helioshop/internal/user"
)

// HealthCheck names one dependency probe for the liveness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// API holds the handler dependencies.
type API struct {
	auth     *auth.Service
	sessions session.Store
	tokens   *token.Manager
	health   []HealthCheck
}

// NewAPI builds the handler set.
func NewAPI(authSvc *auth.Service, sessions session.Store, tokens *token.Manager, health []HealthCheck) *API {
	return &API{auth: authSvc, sessions: sessions, tokens: tokens, health: health}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp,omitempty"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u, err := a.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		// The account may exist with the verification email undelivered;
		// the client can hit resend-otp.
		if u != nil && errors.Is(err, auth.ErrDependency) {
			writeJSON(w, http.StatusCreated, map[string]any{
				"user":          u,
				"otpDispatched": false,
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":          u,
		"otpDispatched": true,
	})
}

func (a *API) handleCredentialsCheck(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	chk, err := a.auth.CheckCredentials(r.Context(), req.Email, req.Password, clientIP(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chk)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password, clientIP(r), userAgent(r))
	if err != nil {
		if errors.Is(err, auth.ErrTwoFactorRequired) {
			// Not a failure: credentials passed, the session waits on the
			// second factor.
			writeJSON(w, http.StatusOK, map[string]any{"twoFactorRequired": true})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeLoginResult(w, res)
}

func (a *API) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	a.issueOTP(w, r, user.PurposeVerifyEmail)
}

func (a *API) handleSendTwoFactorOTP(w http.ResponseWriter, r *http.Request) {
	a.issueOTP(w, r, user.PurposeTwoFactor)
}

func (a *API) issueOTP(w http.ResponseWriter, r *http.Request, purpose user.OTPPurpose) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.IssueOTP(r.Context(), req.Email, purpose); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.VerifyEmailOTP(r.Context(), req.Email, req.OTP); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (a *API) handleVerifyTwoFactorOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res, err := a.auth.VerifyTwoFactorOTP(r.Context(), req.Email, req.OTP, clientIP(r), userAgent(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeLoginResult(w, res)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req struct {
		SessionID string `json:"sessionId,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	a.auth.Logout(r.Context(), claims.UserID, claims.SessionID, req.SessionID)
	w.Header().Set(HeaderSessionRevoked, "true")
	writeJSON(w, http.StatusOK, map[string]bool{"signedOut": true})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.ForgotPassword(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	// Identical answer whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if the account exists, a reset link has been sent",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": true})
}

// handleUpdateProfile renames the account and hands back a token with
// patched display claims; the session identifier and check clock carry over.
func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	u, err := a.auth.UpdateName(r.Context(), claims.UserID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	patched, _, err := a.tokens.PatchIdentity(claims, token.Identity{
		UserID: u.ID.Hex(),
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set(HeaderSessionToken, patched)
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (a *API) handleListDevices(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	devices, err := a.sessions.Devices(r.Context(), claims.UserID, session.Current{
		SessionID: claims.SessionID,
		IP:        clientIP(r),
		UserAgent: userAgent(r),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (a *API) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	// Removing the caller's own live session is allowed; the client performs
	// its own sign-out separately.
	if err := a.sessions.Remove(r.Context(), claims.UserID, req.SessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// handleAdminListDevices lists one user's reconciled sessions when userId is
// given, or every live session in the system otherwise.
func (a *API) handleAdminListDevices(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")

	var (
		devices []model.DeviceSession
		err     error
	)
	if userID != "" {
		devices, err = a.sessions.Devices(r.Context(), userID, session.Current{})
	} else {
		devices, err = a.sessions.ListAll(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (a *API) handleAdminRemoveDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := a.sessions.RemoveByID(r.Context(), req.SessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// handleRemoteLogout deletes the target session and returns the instruction
// the evicted browser executes on its next poll. The deletion is the
// authoritative revocation; the instruction is best-effort UX.
func (a *API) handleRemoteLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if err := a.sessions.RemoveByID(r.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action":   "clear-session",
		"redirect": "/login",
	})
}

func (a *API) handleSetTwoFactor(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.auth.SetTwoFactor(r.Context(), claims.UserID, req.Enabled); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"twoFactorEnabled": req.Enabled})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(a.health))
	for _, hc := range a.health {
		if err := hc.Check(r.Context()); err != nil {
			checks[hc.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[hc.Name] = "ok"
	}
	writeJSON(w, status, checks)
}

func writeLoginResult(w http.ResponseWriter, res *auth.LoginResult) {
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     res.Token,
		"sessionId": res.SessionID,
		"user":      res.User,
	})
}
