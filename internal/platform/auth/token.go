package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token audiences. A token is only accepted by the parser for its own
// audience, so an access token can never reset a password.
const (
	Audience              = "bptrack:auth"
	ResetPasswordAudience = "bptrack:reset-password"
	OAuthStateAudience    = "bptrack:oauth-state"
)

const (
	ResetPasswordLifetime = time.Hour
	OAuthStateLifetime    = time.Hour
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	// PasswordFingerprint ties a reset token to the password hash it was
	// issued against.
	PasswordFingerprint string `json:"password_fgpt,omitempty"`
}

// TokenIssuer mints and verifies HS256 tokens: bearer tokens whose subject
// is the user id, password reset tokens and OAuth state values.
type TokenIssuer struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, lifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:      []byte(secret),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Lifetime returns how long issued access tokens stay valid.
func (i *TokenIssuer) Lifetime() time.Duration {
	return i.lifetime
}

func (i *TokenIssuer) Issue(userID string) (string, error) {
	return i.sign(Claims{}, Audience, userID, i.lifetime)
}

// Parse validates signature, audience and expiry of an access token and
// returns the claims.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	return i.parse(tokenStr, Audience)
}

// IssueReset mints a password reset token for userID. fingerprint should be
// PasswordFingerprint of the current hash so the token dies once the
// password changes.
func (i *TokenIssuer) IssueReset(userID, fingerprint string) (string, error) {
	return i.sign(Claims{PasswordFingerprint: fingerprint}, ResetPasswordAudience, userID, ResetPasswordLifetime)
}

func (i *TokenIssuer) ParseReset(tokenStr string) (*Claims, error) {
	claims, err := i.parse(tokenStr, ResetPasswordAudience)
	if err != nil {
		return nil, err
	}
	if claims.PasswordFingerprint == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueState mints the OAuth state value for provider.
func (i *TokenIssuer) IssueState(provider string) (string, error) {
	return i.sign(Claims{}, OAuthStateAudience, provider, OAuthStateLifetime)
}

// VerifyState checks that state was minted by IssueState for provider and
// has not expired.
func (i *TokenIssuer) VerifyState(state, provider string) error {
	claims, err := i.parse(state, OAuthStateAudience)
	if err != nil {
		return err
	}
	if claims.Subject != provider {
		return ErrInvalidToken
	}
	return nil
}

func (i *TokenIssuer) sign(claims Claims, audience, subject string, lifetime time.Duration) (string, error) {
	now := i.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (i *TokenIssuer) parse(tokenStr, audience string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
