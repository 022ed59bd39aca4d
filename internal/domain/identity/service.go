package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/notification"
)

var (
	ErrUserInactive     = errors.New("user is inactive")
	ErrUserNotVerified  = errors.New("user is not verified")
	ErrInvalidPassword  = errors.New("invalid password")
	ErrMailDelivery     = errors.New("otp delivery failed")
	ErrTooManyAttempts  = errors.New("too many verification attempts")
	ErrBadResetToken    = errors.New("invalid reset password token")
	ErrOAuthState       = errors.New("invalid oauth state")
	ErrOAuthNoEmail     = errors.New("oauth account has no email")
	errPrincipalMissing = errors.New("principal user id is not a uuid")
)

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// AttemptLimiter bounds failed OTP verifications per email.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (noopLimiter) RecordFailure(context.Context, string) (int64, error) { return 0, nil }
func (noopLimiter) Reset(context.Context, string) error { return nil }

// Option configures a Service.
type Option func(*Service)

// WithAttemptLimiter guards VerifyOTP with l.
func WithAttemptLimiter(l AttemptLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithFixedOTP makes every issued code equal to otp and lets that code
// verify any existing account. Only for development and tests.
func WithFixedOTP(otp string) Option {
	return func(s *Service) { s.fixedOTP = otp }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger.With().Str("component", "identity").Logger() }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	users    UserRepository
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenIssuer
	notifier *notification.Notifier
	limiter  AttemptLimiter
	fixedOTP string
	logger   zerolog.Logger
	now      func() time.Time
	otpGen   func() (string, error)
}

func NewService(users UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, notifier *notification.Notifier, opts ...Option) *Service {
	s := &Service{
		users:    users,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		limiter:  noopLimiter{},
		logger:   zerolog.Nop(),
		now:      time.Now,
		otpGen:   randomOTP,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Msg: "Field required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return &ValidationError{Field: "email", Msg: "value is not a valid email address"}
	}
	return nil
}

// Register creates an unverified account and sends its first OTP. When the
// mail provider fails the account is kept and ErrMailDelivery is returned
// together with the user.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password, email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("user registered")

	if err := s.IssueOTP(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// Login checks the credentials and returns a signed bearer token whose
// subject is the user id.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return "", err
	}
	if !u.IsActive {
		return "", ErrUserInactive
	}
	if !u.IsVerified {
		return "", ErrUserNotVerified
	}
	if !s.hasher.Verify(u.HashedPassword, password) {
		return "", ErrInvalidPassword
	}
	return s.tokens.Issue(u.ID.String())
}

// RequestVerification issues a fresh OTP for a pending account. Unknown,
// inactive and already verified addresses are ignored.
func (s *Service) RequestVerification(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive || u.IsVerified {
		s.logger.Debug().Str("user_id", u.ID.String()).Msg("verification request ignored")
		return nil
	}
	return s.IssueOTP(ctx, u)
}

// IssueOTP generates a code, mails it and only then stores it with an expiry
// of OTPLifetime. A delivery failure leaves the stored state untouched.
func (s *Service) IssueOTP(ctx context.Context, u *User) error {
	code := s.fixedOTP
	if code == "" {
		var err error
		if code, err = s.otpGen(); err != nil {
			return fmt.Errorf("generate otp: %w", err)
		}
	}
	expiresAt := s.now().UTC().Add(OTPLifetime)

	if err := s.notifier.SendTemplate(ctx, notification.TemplateOTPCode, u.Email, map[string]string{"otp": code}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("otp email failed")
		return fmt.Errorf("%w: %v", ErrMailDelivery, err)
	}

	if err := s.users.SetOTP(ctx, u.ID, code, expiresAt); err != nil {
		return err
	}
	u.OTP = &code
	u.OTPExpiration = &expiresAt
	s.logger.Info().Str("user_id", u.ID.String()).Time("expires_at", expiresAt).Msg("otp issued")
	return nil
}

// VerifyOTP consumes the pending code of the account registered under email.
func (s *Service) VerifyOTP(ctx context.Context, email, otp string) error {
	email = NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	allowed, err := s.limiter.Allow(ctx, email)
	if err != nil {
		s.logger.Warn().Err(err).Msg("attempt limiter unavailable")
	} else if !allowed {
		return ErrTooManyAttempts
	}

	fixed := s.fixedOTP != "" && otp == s.fixedOTP
	if !fixed && !s.otpMatches(u, otp) {
		if _, err := s.limiter.RecordFailure(ctx, email); err != nil {
			s.logger.Warn().Err(err).Msg("record otp failure")
		}
		return ErrInvalidOTP
	}

	// The conditional write picks the one request that consumes the code.
	if fixed {
		err = s.users.MarkVerified(ctx, u.ID)
	} else {
		err = s.users.ConsumeOTP(ctx, u.ID, otp, s.now().UTC())
	}
	if err != nil {
		return err
	}
	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn().Err(err).Msg("reset otp attempts")
	}
	u.IsVerified = true
	u.OTP = nil
	u.OTPExpiration = nil
	s.logger.Info().Str("user_id", u.ID.String()).Msg("email verified")
	return nil
}

func (s *Service) otpMatches(u *User, otp string) bool {
	if !u.HasPendingOTP() {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*u.OTP), []byte(otp)) != 1 {
		return false
	}
	return !s.now().After(*u.OTPExpiration)
}

// UserUpdate carries the fields a caller may change on their own account.
// Nil fields are left alone.
type UserUpdate struct {
	Email    *string
	Password *string
}

// UpdateUser applies upd to the account. A new email address drops the
// verified flag and any pending code, so the address must be confirmed again.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	emailChanged := false
	if upd.Email != nil {
		email := NormalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != u.Email {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil, ErrUserExists
			} else if !errors.Is(err, ErrUserNotFound) {
				return nil, err
			}
			u.Email = email
			emailChanged = true
			u.IsVerified = false
			u.OTP = nil
			u.OTPExpiration = nil
		}
	}

	if upd.Password != nil {
		if err := auth.ValidatePassword(*upd.Password, u.Email); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
		}
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		u.HashedPassword = hash
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Bool("email_changed", emailChanged).Msg("user updated")
	return u, nil
}

// ForgotPassword mails a reset token to an active account. Unknown and
// inactive addresses are ignored, and a delivery failure is only logged, so
// the caller learns nothing about which addresses exist.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return nil
	}

	token, err := s.tokens.IssueReset(u.ID.String(), auth.PasswordFingerprint(u.HashedPassword))
	if err != nil {
		return err
	}
	if err := s.notifier.SendTemplate(ctx, notification.TemplatePasswordReset, u.Email, map[string]string{"token": token}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", u.ID.String()).Msg("password reset email failed")
		return nil
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password reset requested")
	return nil
}

// ResetPassword sets a new password for the account named by a reset token.
// The token stops working once the password has changed.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	claims, err := s.tokens.ParseReset(token)
	if err != nil {
		return ErrBadResetToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ErrBadResetToken
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return ErrBadResetToken
	}
	if err != nil {
		return err
	}
	if !u.IsActive {
		return ErrBadResetToken
	}
	if subtle.ConstantTimeCompare([]byte(claims.PasswordFingerprint), []byte(auth.PasswordFingerprint(u.HashedPassword))) != 1 {
		return ErrBadResetToken
	}

	if err := auth.ValidatePassword(password, u.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.HashedPassword = hash
	if err := s.users.Update(ctx, u); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Msg("password reset")
	return nil
}

// ResolvePrincipal loads the user named by a token subject.
func (s *Service) ResolvePrincipal(ctx context.Context, userID string) (*auth.Principal, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPrincipalMissing, err)
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}

func randomOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
