package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		email    string
		want     error
	}{
		{"ok", "strongpass123", "user@example.com", nil},
		{"exactly eight", "abcdefgh", "user@example.com", nil},
		{"too short", "short", "user@example.com", ErrPasswordTooShort},
		{"seven multibyte", "ééééééé", "user@example.com", ErrPasswordTooShort},
		{"contains email", "xxuser@example.comxx", "user@example.com", ErrPasswordContainsEmail},
		{"contains email any case", "USER@EXAMPLE.COM!!", "user@example.com", ErrPasswordContainsEmail},
		{"too long", strings.Repeat("a", 73), "user@example.com", ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidatePassword(tt.password, tt.email); got != tt.want {
				t.Errorf("ValidatePassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("strongpass123")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hash == "strongpass123" {
		t.Fatal("expected hash to differ from the password")
	}
	if !h.Verify(hash, "strongpass123") {
		t.Error("expected password to verify")
	}
	if h.Verify(hash, "wrongpass123") {
		t.Error("expected wrong password to fail")
	}
	if h.Verify("not-a-hash", "strongpass123") {
		t.Error("expected malformed hash to fail")
	}
}

func TestNewPasswordHasher_InvalidCost(t *testing.T) {
	h := NewPasswordHasher(100)
	if h.cost != 10 {
		t.Errorf("expected default cost 10, got %d", h.cost)
	}
}

func TestPasswordFingerprint(t *testing.T) {
	a := PasswordFingerprint("$2a$04$abc")
	if a != PasswordFingerprint("$2a$04$abc") {
		t.Error("fingerprint is not stable")
	}
	if a == PasswordFingerprint("$2a$04$abd") {
		t.Error("different hashes share a fingerprint")
	}
	if strings.Contains(a, "abc") || len(a) != 64 {
		t.Errorf("unexpected fingerprint %q", a)
	}
}
