package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, err := mgr.GenerateAccessToken("operator")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := mgr.ValidateAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "operator" || claims.Subject != "operator" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "sniper-trading-bot" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute)

	token, err := mgr.GenerateAccessToken("operator")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.ValidateAccessToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want %v", err, ErrTokenExpired)
	}
}

func TestValidateWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).GenerateAccessToken("operator")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewJWTManager("secret-b", time.Hour).ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want %v", err, ErrInvalidToken)
	}
}

func TestValidateGarbageToken(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)
	if _, err := mgr.ValidateAccessToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want %v", err, ErrInvalidToken)
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	// Minimum cost keeps the test fast
	mgr := NewPasswordManager(4, 8)

	hash, err := mgr.HashPassword("correct-horse")
	if err != nil {
		t.Fatal(err)
	}
	if !mgr.VerifyPassword("correct-horse", hash) {
		t.Error("correct password rejected")
	}
	if mgr.VerifyPassword("wrong-horse", hash) {
		t.Error("wrong password accepted")
	}
}

func TestHashPasswordLengthBounds(t *testing.T) {
	mgr := NewPasswordManager(4, 8)

	if _, err := mgr.HashPassword("short"); err == nil {
		t.Error("password under the minimum length accepted")
	}
	if _, err := mgr.HashPassword(strings.Repeat("x", MaxPasswordLength+1)); err == nil {
		t.Error("oversized password accepted")
	}
}

func TestPasswordManagerDefaults(t *testing.T) {
	mgr := NewPasswordManager(0, 0)
	if mgr.bcryptCost != DefaultBcryptCost {
		t.Errorf("cost = %d, want default %d", mgr.bcryptCost, DefaultBcryptCost)
	}
	if mgr.minPasswordLength != 8 {
		t.Errorf("min length = %d, want 8", mgr.minPasswordLength)
	}
}
