package auth

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the auth flows. Handlers map these onto HTTP statuses;
// the service never leaks store or SMTP internals past ErrDependency.
var (
	// ErrInvalidInput covers malformed email or missing fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// login responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is the distinct not-found for flows where the caller
	// already proved account knowledge.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned on duplicate registration.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnverifiedEmail blocks session issuance for unverified accounts.
	ErrUnverifiedEmail = errors.New("email not verified")
	// ErrTwoFactorRequired signals that credentials were accepted but a
	// second factor must be completed before a session exists.
	ErrTwoFactorRequired = errors.New("two-factor verification required")
	// ErrOTPNotFound: no code is pending (never issued, or already consumed).
	ErrOTPNotFound = errors.New("no verification code pending")
	// ErrOTPExpired: the pending code's validity window has lapsed.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPMismatch: the submitted code differs from the pending one.
	ErrOTPMismatch = errors.New("incorrect verification code")
	// ErrResetTokenInvalid covers unknown and expired password-reset tokens.
	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
	// ErrLocked: the attempt guard threshold was reached.
	ErrLocked = errors.New("too many failed attempts")
	// ErrThrottled: a resend arrived inside its cool-down.
	ErrThrottled = errors.New("please wait before requesting another code")
	// ErrForbidden: the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrDependency hides database and email failures from clients.
	ErrDependency = errors.New("internal dependency failure")
)

// LockedError carries how long the caller must wait. errors.Is matches it
// against ErrLocked.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many failed attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// ThrottledError carries the remaining cool-down. errors.Is matches it
// against ErrThrottled.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("resend throttled, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Unwrap() error { return ErrThrottled }
