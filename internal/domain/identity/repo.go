package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUserExists is returned by Create when the email is already registered.
var ErrUserExists = errors.New("user already exists")

// ErrUserNotFound is returned when no account matches a lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidOTP is returned when a code is wrong, expired or already used.
var ErrInvalidOTP = errors.New("invalid or expired otp")

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// SetOTP stores a fresh code and its expiry in one write.
	SetOTP(ctx context.Context, id uuid.UUID, otp string, expiresAt time.Time) error
	// ConsumeOTP flips is_verified and clears the code in one conditional
	// write that only matches while otp is the pending code and has not
	// expired at now. It returns ErrInvalidOTP when nothing matched, so a
	// code verifies at most once.
	ConsumeOTP(ctx context.Context, id uuid.UUID, otp string, now time.Time) error
	// MarkVerified clears any code and flips is_verified unconditionally.
	MarkVerified(ctx context.Context, id uuid.UUID) error
	// Update writes email, hashed password, verification flag and pending
	// code. A taken email returns ErrUserExists.
	Update(ctx context.Context, u *User) error
}
