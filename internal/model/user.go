package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles a user document can carry. Admins are the only accounts that may
// enable the two-factor login flow.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the account document. The two OTP field pairs are deliberately
// separate: one pair backs email verification, the other backs two-factor
// login, and consuming one must never clear the other.
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	Name             string             `bson:"name" json:"name"`
	PasswordHash     string             `bson:"passwordHash" json:"-"`
	Role             string             `bson:"role" json:"role"`
	IsEmailVerified  bool               `bson:"isEmailVerified" json:"isEmailVerified"`
	TwoFactorEnabled bool               `bson:"twoFactorEnabled" json:"twoFactorEnabled"`

	OTP                string    `bson:"otp,omitempty" json:"-"`
	OTPExpiry          time.Time `bson:"otpExpiry,omitempty" json:"-"`
	TwoFactorOTP       string    `bson:"twoFactorOtp,omitempty" json:"-"`
	TwoFactorOTPExpiry time.Time `bson:"twoFactorOtpExpiry,omitempty" json:"-"`

	ResetToken       string    `bson:"resetToken,omitempty" json:"-"`
	ResetTokenExpiry time.Time `bson:"resetTokenExpiry,omitempty" json:"-"`

	// Sessions holds the device-session identifiers this user currently owns,
	// in login order. It may transiently diverge from the devicesessions
	// collection; listing reads reconcile it.
	Sessions []string `bson:"sessions" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsAdmin reports whether the account holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
