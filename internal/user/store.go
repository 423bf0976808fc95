// Package user persists account documents. All lookups are by lowercased
// email or by id; one-time-code and reset-token mutations clear their fields
// atomically with the state they prove.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/helioshop/helioshop/internal/model"
)

var (
	// ErrNotFound is returned when no account matches.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registration hits the unique email index.
	ErrEmailTaken = errors.New("email already registered")
	// ErrUnavailable wraps store-level failures.
	ErrUnavailable = errors.New("user store unavailable")
)

// OTPPurpose selects which one-time-code field pair an operation touches.
type OTPPurpose string

const (
	// PurposeVerifyEmail backs first-login email verification.
	PurposeVerifyEmail OTPPurpose = "verify"
	// PurposeTwoFactor backs the admin two-factor login step.
	PurposeTwoFactor OTPPurpose = "2fa"
)

// Store is the account persistence contract.
type Store interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)

	// SetOTP stores a fresh code + expiry for the given purpose, replacing
	// any pending one.
	SetOTP(ctx context.Context, id string, purpose OTPPurpose, code string, expiry time.Time) error
	// ConsumeOTP clears the code fields; for the verify purpose it also
	// flips the verified flag in the same update.
	ConsumeOTP(ctx context.Context, id string, purpose OTPPurpose) error

	SetResetToken(ctx context.Context, id, token string, expiry time.Time) error
	// UpdatePassword replaces the hash and clears any pending reset token.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	UpdateName(ctx context.Context, id, name string) error
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
}

// MongoStore implements Store on the users collection.
type MongoStore struct {
	users *mongo.Collection
	now   func() time.Time
}

// NewMongoStore wires the store over the users collection.
func NewMongoStore(users *mongo.Collection) *MongoStore {
	return &MongoStore{users: users, now: time.Now}
}

// NormalizeEmail lowercases and trims an address; emails are unique
// case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MongoStore) Create(ctx context.Context, u *model.User) (*model.User, error) {
	now := s.now()
	u.Email = NormalizeEmail(u.Email)
	u.Sessions = []string{}
	u.CreatedAt = now
	u.UpdatedAt = now

	res, err := s.users.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, wrap(err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid
	}
	return u, nil
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	err := s.users.FindOne(ctx, bson.M{"email": NormalizeEmail(email)}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrap(err)
	}
	return &u, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id string) (*model.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var u model.User
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, wrap(err)
	}
	return &u, nil
}

func (s *MongoStore) SetOTP(ctx context.Context, id string, purpose OTPPurpose, code string, expiry time.Time) error {
	codeField, expiryField := otpFields(purpose)
	return s.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			codeField:   code,
			expiryField: expiry,
			"updatedAt": s.now(),
		},
	})
}

func (s *MongoStore) ConsumeOTP(ctx context.Context, id string, purpose OTPPurpose) error {
	codeField, expiryField := otpFields(purpose)
	update := bson.M{
		"$unset": bson.M{codeField: "", expiryField: ""},
		"$set":   bson.M{"updatedAt": s.now()},
	}
	if purpose == PurposeVerifyEmail {
		update["$set"].(bson.M)["isEmailVerified"] = true
	}
	return s.updateByID(ctx, id, update)
}

func (s *MongoStore) SetResetToken(ctx context.Context, id, token string, expiry time.Time) error {
	return s.updateByID(ctx, id, bson.M{
		"$set": bson.M{
			"resetToken":       token,
			"resetTokenExpiry": expiry,
			"updatedAt":        s.now(),
		},
	})
}

func (s *MongoStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateByID(ctx, id, bson.M{
		"$set":   bson.M{"passwordHash": passwordHash, "updatedAt": s.now()},
		"$unset": bson.M{"resetToken": "", "resetTokenExpiry": ""},
	})
}

func (s *MongoStore) UpdateName(ctx context.Context, id, name string) error {
	return s.updateByID(ctx, id, bson.M{
		"$set": bson.M{"name": name, "updatedAt": s.now()},
	})
}

func (s *MongoStore) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	update := bson.M{
		"$set": bson.M{"twoFactorEnabled": enabled, "updatedAt": s.now()},
	}
	if !enabled {
		update["$unset"] = bson.M{"twoFactorOtp": "", "twoFactorOtpExpiry": ""}
	}
	return s.updateByID(ctx, id, update)
}

func (s *MongoStore) updateByID(ctx context.Context, id string, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.users.UpdateByID(ctx, oid, update)
	if err != nil {
		return wrap(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func otpFields(purpose OTPPurpose) (code, expiry string) {
	if purpose == PurposeTwoFactor {
		return "twoFactorOtp", "twoFactorOtpExpiry"
	}
	return "otp", "otpExpiry"
}

func wrap(err error) error {
	return errors.Join(ErrUnavailable, err)
}
