// Package auth orchestrates credential verification, one-time codes,
// device-session creation, and token issuance. It owns the ordering
// invariant of a login: credentials first, then the optional second factor,
// then a durable device session, and only then a token referencing it.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"time"

	"github.com/helioshop/helioshop/internal/limiters"
	"github.com/helioshop/helioshop/internal/mailer"
	"github.com/helioshop/helioshop/internal/model"
	"github.com/helioshop/helioshop/internal/otp"
	"github.com/helioshop/helioshop/internal/password"
	"github.com/helioshop/helioshop/internal/session"
	"github.com/helioshop/helioshop/internal/token"
	"github.com/helioshop/helioshop/internal/user"
)

// Config carries the service-level knobs with their shipped defaults.
type Config struct {
	OTPTTL        time.Duration
	ResetTokenTTL time.Duration
	BaseURL       string
}

// Service wires the auth flows over their stores and collaborators.
type Service struct {
	users    user.Store
	sessions session.Store
	guard    *limiters.Guard
	resend   *limiters.ResendThrottle
	hasher   *password.Hasher
	tokens   *token.Manager
	mail     mailer.Sender
	cfg      Config
	now      func() time.Time
}

// NewService builds the auth service.
func NewService(
	users user.Store,
	sessions session.Store,
	guard *limiters.Guard,
	resend *limiters.ResendThrottle,
	hasher *password.Hasher,
	tokens *token.Manager,
	mail mailer.Sender,
	cfg Config,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		guard:    guard,
		resend:   resend,
		hasher:   hasher,
		tokens:   tokens,
		mail:     mail,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CredentialCheck is the precheck result the login screen uses to branch
// into verification or two-factor UX before committing to a full login.
type CredentialCheck struct {
	UserExists       bool `json:"userExists"`
	CredentialsValid bool `json:"credentialsValid"`
	Verified         bool `json:"verified"`
	IsAdmin          bool `json:"isAdmin"`
	TwoFactorEnabled bool `json:"twoFactorEnabled"`
}

// LoginResult is a completed authentication: a durable device session and
// the token correlated with it.
type LoginResult struct {
	Token     string
	SessionID string
	User      *model.User
}

// CheckCredentials evaluates (email, password) without creating any session
// state. Failed checks count against the attempt guard like failed logins.
func (s *Service) CheckCredentials(ctx context.Context, email, pw, clientIP string) (*CredentialCheck, error) {
	email = user.NormalizeEmail(email)
	if email == "" || pw == "" {
		return nil, ErrInvalidInput
	}
	if err := s.ensureNotLocked(ctx, email, clientIP); err != nil {
		return nil, err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.recordFailure(ctx, email, clientIP)
			return &CredentialCheck{}, nil
		}
		return nil, s.dependency("credential lookup", err)
	}

	ok, err := s.hasher.Verify(pw, u.PasswordHash)
	if err != nil {
		return nil, s.dependency("password verify", err)
	}
	if !ok {
		s.recordFailure(ctx, email, clientIP)
		return &CredentialCheck{UserExists: true}, nil
	}

	return &CredentialCheck{
		UserExists:       true,
		CredentialsValid: true,
		Verified:         u.IsEmailVerified,
		IsAdmin:          u.IsAdmin(),
		TwoFactorEnabled: u.TwoFactorEnabled,
	}, nil
}

// Login runs the full flow: guard, credentials, verification gate,
// two-factor gate, then session creation and token issuance. The device
// session is durable before the token referencing it is returned.
func (s *Service) Login(ctx context.Context, email, pw, clientIP, userAgent string) (*LoginResult, error) {
	email = user.NormalizeEmail(email)
	if email == "" || pw == "" {
		return nil, ErrInvalidInput
	}
	if err := s.ensureNotLocked(ctx, email, clientIP); err != nil {
		return nil, err
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.recordFailure(ctx, email, clientIP)
			return nil, ErrInvalidCredentials
		}
		return nil, s.dependency("credential lookup", err)
	}

	ok, err := s.hasher.Verify(pw, u.PasswordHash)
	if err != nil {
		return nil, s.dependency("password verify", err)
	}
	if !ok {
		s.recordFailure(ctx, email, clientIP)
		return nil, ErrInvalidCredentials
	}

	if !u.IsEmailVerified {
		return nil, ErrUnverifiedEmail
	}
	if u.IsAdmin() && u.TwoFactorEnabled {
		// Credentials proved; the session waits for the second factor.
		s.clearGuard(ctx, email, clientIP)
		return nil, ErrTwoFactorRequired
	}

	s.clearGuard(ctx, email, clientIP)
	return s.establishSession(ctx, u, clientIP, userAgent)
}

// IssueOTP generates, persists, and emails a fresh code for the purpose.
// Resends inside the cool-down are throttled; regeneration always replaces
// the prior code. A persisted code whose email never left is an error.
func (s *Service) IssueOTP(ctx context.Context, email string, purpose user.OTPPurpose) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.dependency("otp user lookup", err)
	}
	if purpose == user.PurposeTwoFactor && !(u.IsAdmin() && u.TwoFactorEnabled) {
		return ErrForbidden
	}

	if wait, err := s.resend.Allow(ctx, string(purpose), email); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			return &ThrottledError{RetryAfter: wait}
		}
		log.Printf("auth: resend throttle unavailable, allowing: %v", err)
	}

	code, err := otp.New(otp.Digits)
	if err != nil {
		return s.dependency("otp generation", err)
	}
	expiry := s.now().Add(s.cfg.OTPTTL)
	if err := s.users.SetOTP(ctx, u.ID.Hex(), purpose, code, expiry); err != nil {
		return s.dependency("otp persistence", err)
	}

	subject, body := otpEmail(u.Name, code, purpose, s.cfg.OTPTTL)
	if err := s.mail.Send(ctx, u.Email, subject, body); err != nil {
		return s.dependency("otp email dispatch", err)
	}
	return nil
}

// VerifyEmailOTP consumes a pending email-verification code. Success flips
// the verified flag and clears the code in one update.
func (s *Service) VerifyEmailOTP(ctx context.Context, email, code string) error {
	u, err := s.pendingOTPUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.checkOTP(u.OTP, u.OTPExpiry, code); err != nil {
		return err
	}
	if err := s.users.ConsumeOTP(ctx, u.ID.Hex(), user.PurposeVerifyEmail); err != nil {
		return s.dependency("otp consume", err)
	}
	return nil
}

// VerifyTwoFactorOTP consumes a pending two-factor code and, on success,
// completes the login it was gating: device session plus token.
func (s *Service) VerifyTwoFactorOTP(ctx context.Context, email, code, clientIP, userAgent string) (*LoginResult, error) {
	u, err := s.pendingOTPUser(ctx, email)
	if err != nil {
		return nil, err
	}
	// The verified-email gate holds on every path that can end in a session,
	// not just the password login.
	if !u.IsEmailVerified {
		return nil, ErrUnverifiedEmail
	}
	if err := s.checkOTP(u.TwoFactorOTP, u.TwoFactorOTPExpiry, code); err != nil {
		return nil, err
	}
	if err := s.users.ConsumeOTP(ctx, u.ID.Hex(), user.PurposeTwoFactor); err != nil {
		return nil, s.dependency("otp consume", err)
	}
	return s.establishSession(ctx, u, clientIP, userAgent)
}

// Logout clears the caller's session state. Deletion of the device-session
// record is best-effort: the client-side sign-out completes regardless.
func (s *Service) Logout(ctx context.Context, userID, currentSessionID, targetSessionID string) {
	target := targetSessionID
	if target == "" {
		target = currentSessionID
	}
	if target == "" {
		return
	}
	if err := s.sessions.Remove(ctx, userID, target); err != nil {
		log.Printf("auth: sign-out cleanup of session %s failed: %v", target, err)
	}
}

// Register creates an unverified account and kicks off email verification.
func (s *Service) Register(ctx context.Context, name, email, pw string) (*model.User, error) {
	email = user.NormalizeEmail(email)
	if name == "" || pw == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, ErrInvalidInput
	}

	u, err := s.users.Create(ctx, &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, s.dependency("user creation", err)
	}

	if err := s.IssueOTP(ctx, email, user.PurposeVerifyEmail); err != nil {
		// Account exists; the verification code can be resent. Surface the
		// dispatch failure so the client knows no email is coming.
		return u, err
	}
	return u, nil
}

// ForgotPassword issues a reset token and emails a reset link. It answers
// identically whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	// The cool-down is claimed before the lookup: a throttled answer for a
	// known account and a plain success for an unknown one would otherwise
	// disclose which accounts exist.
	if wait, err := s.resend.Allow(ctx, "reset", email); err != nil {
		if errors.Is(err, limiters.ErrThrottled) {
			return &ThrottledError{RetryAfter: wait}
		}
		log.Printf("auth: resend throttle unavailable, allowing: %v", err)
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil // no account enumeration
		}
		return s.dependency("reset user lookup", err)
	}

	tok, err := newResetToken()
	if err != nil {
		return s.dependency("reset token generation", err)
	}
	expiry := s.now().Add(s.cfg.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, u.ID.Hex(), tok, expiry); err != nil {
		return s.dependency("reset token persistence", err)
	}

	link := fmt.Sprintf("%s/reset-password?email=%s&token=%s", s.cfg.BaseURL, u.Email, tok)
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Use the link below to reset your password:</p><p><a href=%q>%s</a></p><p>The link expires in %s.</p>",
		u.Name, link, link, s.cfg.ResetTokenTTL,
	)
	if err := s.mail.Send(ctx, u.Email, "Reset your password", body); err != nil {
		return s.dependency("reset email dispatch", err)
	}
	return nil
}

// ResetPassword validates the token and replaces the password hash,
// clearing the token fields in the same update.
func (s *Service) ResetPassword(ctx context.Context, email, tok, newPassword string) error {
	email = user.NormalizeEmail(email)
	if email == "" || tok == "" || newPassword == "" {
		return ErrInvalidInput
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return s.dependency("reset user lookup", err)
	}
	if u.ResetToken == "" || u.ResetToken != tok {
		return ErrResetTokenInvalid
	}
	if !s.now().Before(u.ResetTokenExpiry) {
		return ErrResetTokenInvalid
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return ErrInvalidInput
	}
	if err := s.users.UpdatePassword(ctx, u.ID.Hex(), hash); err != nil {
		return s.dependency("password update", err)
	}
	return nil
}

// ChangePassword verifies the current password before replacing it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return ErrInvalidInput
	}

	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.dependency("user lookup", err)
	}

	ok, err := s.hasher.Verify(current, u.PasswordHash)
	if err != nil {
		return s.dependency("password verify", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return ErrInvalidInput
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return s.dependency("password update", err)
	}
	return nil
}

// UpdateName changes the display name and returns the fresh user so the
// caller can re-issue the token through the patch path.
func (s *Service) UpdateName(ctx context.Context, userID, name string) (*model.User, error) {
	if name == "" {
		return nil, ErrInvalidInput
	}
	if err := s.users.UpdateName(ctx, userID, name); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.dependency("name update", err)
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.dependency("user lookup", err)
	}
	return u, nil
}

// SetTwoFactor toggles the two-factor flag. Only admin accounts carry it.
func (s *Service) SetTwoFactor(ctx context.Context, userID string, enabled bool) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrUserNotFound
		}
		return s.dependency("user lookup", err)
	}
	if !u.IsAdmin() {
		return ErrForbidden
	}
	if err := s.users.SetTwoFactorEnabled(ctx, userID, enabled); err != nil {
		return s.dependency("two-factor update", err)
	}
	return nil
}

func (s *Service) establishSession(ctx context.Context, u *model.User, clientIP, userAgent string) (*LoginResult, error) {
	sess, err := s.sessions.Create(ctx, u.ID.Hex(), clientIP, userAgent)
	if err != nil {
		return nil, s.dependency("session creation", err)
	}

	signed, err := s.tokens.Issue(token.Identity{
		UserID: u.ID.Hex(),
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
	}, sess.ID)
	if err != nil {
		return nil, s.dependency("token issuance", err)
	}

	return &LoginResult{Token: signed, SessionID: sess.ID, User: u}, nil
}

func (s *Service) pendingOTPUser(ctx context.Context, email string) (*model.User, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, s.dependency("otp user lookup", err)
	}
	return u, nil
}

// checkOTP applies the single-use code rules: a missing code is NotFound,
// expiry is exclusive of the boundary instant, and only then is the exact
// string compared.
func (s *Service) checkOTP(stored string, expiry time.Time, submitted string) error {
	if stored == "" {
		return ErrOTPNotFound
	}
	if !s.now().Before(expiry) {
		return ErrOTPExpired
	}
	if stored != submitted {
		return ErrOTPMismatch
	}
	return nil
}

// ensureNotLocked consults the guard for both identity keys. A guard
// backend failure is logged and ignored: the guard is a deterrent, not the
// security boundary.
func (s *Service) ensureNotLocked(ctx context.Context, email, clientIP string) error {
	for _, identity := range []string{email, clientIP} {
		locked, retryAfter, err := s.guard.IsLocked(ctx, identity)
		if err != nil {
			log.Printf("auth: attempt guard unavailable for %s: %v", identity, err)
			continue
		}
		if locked {
			return &LockedError{RetryAfter: retryAfter}
		}
	}
	return nil
}

func (s *Service) recordFailure(ctx context.Context, email, clientIP string) {
	for _, identity := range []string{email, clientIP} {
		if _, err := s.guard.RecordFailure(ctx, identity); err != nil {
			log.Printf("auth: attempt guard record for %s failed: %v", identity, err)
		}
	}
}

func (s *Service) clearGuard(ctx context.Context, email, clientIP string) {
	for _, identity := range []string{email, clientIP} {
		if err := s.guard.Clear(ctx, identity); err != nil {
			log.Printf("auth: attempt guard clear for %s failed: %v", identity, err)
		}
	}
}

// dependency logs the real cause and returns the opaque sentinel.
func (s *Service) dependency(op string, err error) error {
	log.Printf("auth: %s failed: %v", op, err)
	return ErrDependency
}

func otpEmail(name, code string, purpose user.OTPPurpose, ttl time.Duration) (subject, body string) {
	switch purpose {
	case user.PurposeTwoFactor:
		subject = "Your two-factor login code"
	default:
		subject = "Verify your email address"
	}
	body = fmt.Sprintf(
		"<p>Hi %s,</p><p>Your code is:</p><h2>%s</h2><p>It expires in %d minutes.</p>",
		name, code, int(ttl.Minutes()),
	)
	return subject, body
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
