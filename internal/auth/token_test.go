package auth

import (
	"bytes"
	"testing"
	"time"

	"github.com/hitoshi/habitman/internal/model"
)

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	user := &model.User{ID: "user-1", Email: "user@example.com"}

	token, expiresAt, err := issuer.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if expiresAt.Before(time.Now()) {
		t.Error("token should not be expired at issue time")
	}

	principal, err := issuer.VerifyAccessToken(token)
	if err != nil {
		t.Fatalf("VerifyAccessToken() error = %v", err)
	}
	if principal.ID != "user-1" {
		t.Errorf("principal ID = %q, want %q", principal.ID, "user-1")
	}
	if principal.Email != "user@example.com" {
		t.Errorf("principal email = %q, want %q", principal.Email, "user@example.com")
	}
}

func TestVerifyAccessToken_WrongSecret_Fails(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Hour)
	other := NewTokenIssuer("secret-b", time.Hour)

	token, _, err := issuer.IssueAccessToken(&model.User{ID: "user-1", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	if _, err := other.VerifyAccessToken(token); err == nil {
		t.Fatal("expected verification to fail with a different secret")
	}
}

func TestVerifyAccessToken_Expired_Fails(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", -time.Minute)

	token, _, err := issuer.IssueAccessToken(&model.User{ID: "user-1", Email: "u@example.com"})
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}

	if _, err := issuer.VerifyAccessToken(token); err == nil {
		t.Fatal("expected verification to fail for an expired token")
	}
}

func TestVerifyAccessToken_Garbage_Fails(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	if _, err := issuer.VerifyAccessToken("not-a-jwt"); err == nil {
		t.Fatal("expected verification to fail for malformed input")
	}
}

func TestGenerateRefreshToken_HashMatches(t *testing.T) {
	token, hash, err := generateRefreshToken()
	if err != nil {
		t.Fatalf("generateRefreshToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	if !bytes.Equal(hash, HashRefreshToken(token)) {
		t.Error("returned hash does not match HashRefreshToken(token)")
	}

	// トークンは毎回異なること
	token2, _, err := generateRefreshToken()
	if err != nil {
		t.Fatalf("generateRefreshToken() error = %v", err)
	}
	if token == token2 {
		t.Error("expected distinct tokens across calls")
	}
}
