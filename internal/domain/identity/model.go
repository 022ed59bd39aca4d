package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/bptrack/bptrack/internal/platform/auth"
	"github.com/bptrack/bptrack/internal/platform/fhir"
	"github.com/bptrack/bptrack/pkg/fhirmodels"
)

// OTPLifetime is how long an issued verification code stays valid.
const OTPLifetime = 10 * time.Minute

// User is an account together with its email verification state. OTP and
// OTPExpiration are either both set or both nil.
type User struct {
	ID             uuid.UUID  `json:"id"`
	Email          string     `json:"email"`
	HashedPassword string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	IsSuperuser    bool       `json:"is_superuser"`
	IsVerified     bool       `json:"is_verified"`
	OTP            *string    `json:"-"`
	OTPExpiration  *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasPendingOTP reports whether a code has been issued and not yet consumed.
func (u *User) HasPendingOTP() bool {
	return u.OTP != nil && u.OTPExpiration != nil
}

// Principal converts the user into the identity attached to authenticated
// requests.
func (u *User) Principal() *auth.Principal {
	return &auth.Principal{
		ID:         u.ID.String(),
		Email:      u.Email,
		IsActive:   u.IsActive,
		IsVerified: u.IsVerified,
	}
}

// ToFHIR renders the user as a minimal FHIR Patient.
func (u *User) ToFHIR() map[string]interface{} {
	return PatientFromPrincipal(u.Principal())
}

// PatientFromPrincipal renders an authenticated caller as a FHIR Patient.
func PatientFromPrincipal(p *auth.Principal) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Patient",
		"id":           p.ID,
		"active":       p.IsActive,
		"identifier": []fhir.Identifier{{
			System: fhirmodels.SystemMailto,
			Value:  p.Email,
		}},
	}
}

// RegisterRequest is the body of the register endpoints.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyOTPRequest is the body of POST /auth/verify-otp.
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyTokenRequest is the body of POST /auth/request-verify-token.
type VerifyTokenRequest struct {
	Email string `json:"email"`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// UserUpdateRequest is the body of PATCH /users/me. Other account fields in
// the body are ignored.
type UserUpdateRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

// AuthorizeResponse carries the provider sign-in URL.
type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// UserRead is the public view of an account.
type UserRead struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
