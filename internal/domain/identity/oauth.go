package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bptrack/bptrack/internal/platform/oauth"
)

// OAuthProvider is an external identity provider that signs users in with
// the authorization code flow.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	Identify(ctx context.Context, code string) (*oauth.Identity, error)
}

// OAuthAuthorizeURL returns where to send the browser to sign in with p.
func (s *Service) OAuthAuthorizeURL(p OAuthProvider) (string, error) {
	state, err := s.tokens.IssueState(p.Name())
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// OAuthLogin completes a provider sign-in and returns a bearer token. The
// account is matched by email; a first sign-in creates a verified account
// with an unusable random password. An unverified local account is verified
// when the provider vouches for the address.
func (s *Service) OAuthLogin(ctx context.Context, p OAuthProvider, code, state string) (string, error) {
	if err := s.tokens.VerifyState(state, p.Name()); err != nil {
		return "", ErrOAuthState
	}

	id, err := p.Identify(ctx, code)
	if err != nil {
		return "", err
	}
	email := NormalizeEmail(id.Email)
	if email == "" {
		return "", ErrOAuthNoEmail
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		if u, err = s.createOAuthUser(ctx, email); err != nil {
			return "", err
		}
		s.logger.Info().Str("user_id", u.ID.String()).Str("provider", p.Name()).Msg("user registered via oauth")
	case err != nil:
		return "", err
	}

	if !u.IsActive {
		return "", ErrUserInactive
	}
	if !u.IsVerified && id.EmailVerified {
		if err := s.users.MarkVerified(ctx, u.ID); err != nil {
			return "", err
		}
		u.IsVerified = true
		s.logger.Info().Str("user_id", u.ID.String()).Str("provider", p.Name()).Msg("email verified via oauth")
	}
	return s.tokens.Issue(u.ID.String())
}

func (s *Service) createOAuthUser(ctx context.Context, email string) (*User, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := s.hasher.Hash(hex.EncodeToString(secret))
	if err != nil {
		return nil, err
	}
	u := &User{
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
		IsVerified:     true,
	}
	err = s.users.Create(ctx, u)
	if errors.Is(err, ErrUserExists) {
		// Lost a race with a concurrent first sign-in.
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
