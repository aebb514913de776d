package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MaxPasswordLength bounds input to keep bcrypt cheap
	MaxPasswordLength = 128
)

// PasswordManager handles password hashing and verification
type PasswordManager struct {
	bcryptCost        int
	minPasswordLength int
}

// NewPasswordManager creates a new password manager
func NewPasswordManager(bcryptCost, minLength int) *PasswordManager {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = DefaultBcryptCost
	}
	if minLength < 8 {
		minLength = 8
	}
	return &PasswordManager{
		bcryptCost:        bcryptCost,
		minPasswordLength: minLength,
	}
}

// HashPassword hashes a password using bcrypt
func (p *PasswordManager) HashPassword(password string) (string, error) {
	if len(password) < p.minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", p.minPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return "", fmt.Errorf("password too long")
	}

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(bytes), nil
}

// VerifyPassword verifies a password against a hash
func (p *PasswordManager) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
