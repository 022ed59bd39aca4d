package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Errorf("expected 1h lifetime, got %s", got)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := issuer.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Parse(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_WrongKey(t *testing.T) {
	token, err := NewTokenIssuer("another-secret-key-entirely", time.Hour).Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	if _, err := NewTokenIssuer(testSecret, time.Hour).Parse(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignTokens(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	now := time.Now()

	tests := []struct {
		name   string
		method jwt.SigningMethod
		claims jwt.RegisteredClaims
	}{
		{"wrong audience", jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}},
		{"no expiry", jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:  "user-1",
			Audience: jwt.ClaimStrings{Audience},
		}},
		{"no subject", jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}},
		{"hs512", jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := jwt.NewWithClaims(tt.method, tt.claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := issuer.Parse(token); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestTokenIssuer_Garbage(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)
	for _, s := range []string{"", "abc", "a.b.c"} {
		if _, err := issuer.Parse(s); err != ErrInvalidToken {
			t.Errorf("Parse(%q): expected ErrInvalidToken, got %v", s, err)
		}
	}
}

func TestTokenIssuer_ResetRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.IssueReset("user-1", "fp-1")
	if err != nil {
		t.Fatalf("IssueReset() error: %v", err)
	}
	claims, err := issuer.ParseReset(token)
	if err != nil {
		t.Fatalf("ParseReset() error: %v", err)
	}
	if claims.Subject != "user-1" || claims.PasswordFingerprint != "fp-1" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != ResetPasswordLifetime {
		t.Errorf("expected %s lifetime, got %s", ResetPasswordLifetime, got)
	}
}

func TestTokenIssuer_AudiencesDoNotMix(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	access, _ := issuer.Issue("user-1")
	reset, _ := issuer.IssueReset("user-1", "fp-1")
	state, _ := issuer.IssueState("google")

	if _, err := issuer.ParseReset(access); err != ErrInvalidToken {
		t.Errorf("access token accepted as reset token: %v", err)
	}
	if _, err := issuer.Parse(reset); err != ErrInvalidToken {
		t.Errorf("reset token accepted as access token: %v", err)
	}
	if _, err := issuer.Parse(state); err != ErrInvalidToken {
		t.Errorf("state accepted as access token: %v", err)
	}
	if err := issuer.VerifyState(access, "google"); err != ErrInvalidToken {
		t.Errorf("access token accepted as state: %v", err)
	}
}

func TestTokenIssuer_State(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, time.Hour)

	state, err := issuer.IssueState("google")
	if err != nil {
		t.Fatalf("IssueState() error: %v", err)
	}
	if err := issuer.VerifyState(state, "google"); err != nil {
		t.Errorf("VerifyState() error: %v", err)
	}
	if err := issuer.VerifyState(state, "github"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for other provider, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(OAuthStateLifetime + time.Minute) }
	if err := issuer.VerifyState(state, "google"); err != ErrInvalidToken {
		t.Errorf("expected expired state to fail, got %v", err)
	}
}
