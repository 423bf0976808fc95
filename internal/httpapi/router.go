package httpapi

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Router mounts every route behind the session middleware and wraps the
// whole tree in request logging and panic recovery.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(a.sessionMiddleware)

	authR := r.PathPrefix("/auth").Subrouter()
	authR.HandleFunc("/register", a.handleRegister).Methods(http.MethodPost)
	authR.HandleFunc("/login-credentials-check", a.handleCredentialsCheck).Methods(http.MethodPost)
	authR.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	authR.HandleFunc("/resend-otp", a.handleResendOTP).Methods(http.MethodPost)
	authR.HandleFunc("/verify-otp", a.handleVerifyOTP).Methods(http.MethodPost)
	authR.HandleFunc("/send-2fa-otp", a.handleSendTwoFactorOTP).Methods(http.MethodPost)
	authR.HandleFunc("/verify-2fa-otp", a.handleVerifyTwoFactorOTP).Methods(http.MethodPost)
	authR.HandleFunc("/forgot-password", a.handleForgotPassword).Methods(http.MethodPost)
	authR.HandleFunc("/reset-password", a.handleResetPassword).Methods(http.MethodPost)
	authR.HandleFunc("/logout", requireAuth(a.handleLogout)).Methods(http.MethodPost)
	authR.HandleFunc("/change-password", requireAuth(a.handleChangePassword)).Methods(http.MethodPost)
	authR.HandleFunc("/profile", requireAuth(a.handleUpdateProfile)).Methods(http.MethodPatch)

	sessR := r.PathPrefix("/sessions").Subrouter()
	sessR.HandleFunc("/devices", requireAuth(a.handleListDevices)).Methods(http.MethodGet)
	sessR.HandleFunc("/devices", requireAuth(a.handleRemoveDevice)).Methods(http.MethodDelete)

	adminR := r.PathPrefix("/admin").Subrouter()
	adminR.HandleFunc("/sessions/devices", requireAdmin(a.handleAdminListDevices)).Methods(http.MethodGet)
	adminR.HandleFunc("/sessions/devices", requireAdmin(a.handleAdminRemoveDevice)).Methods(http.MethodDelete)
	adminR.HandleFunc("/sessions/remote-logout", requireAdmin(a.handleRemoteLogout)).Methods(http.MethodGet)
	adminR.HandleFunc("/two-factor", requireAdmin(a.handleSetTwoFactor)).Methods(http.MethodPost)

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)

	return handlers.RecoveryHandler()(handlers.LoggingHandler(os.Stdout, r))
}
