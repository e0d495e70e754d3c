package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultBcryptCost is the default bcrypt cost factor
	DefaultBcryptCost = 12

	// MinPasswordLength is the minimum password length in characters
	MinPasswordLength = 8

	// MaxPasswordBytes is bcrypt's input limit; longer passwords fail to hash.
	MaxPasswordBytes = 72

	// minEmailFragment is the shortest email local part that a password may
	// not contain.
	minEmailFragment = 4
)

// WeakPasswordError lists every rule a candidate password failed.
type WeakPasswordError struct {
	Unmet []string
}

func (e *WeakPasswordError) Error() string {
	return "password must " + strings.Join(e.Unmet, ", and must ")
}

// PasswordPolicy is the strength check applied when an account is created.
type PasswordPolicy struct {
	MinLength int
}

// Check returns a *WeakPasswordError when password breaks the policy.
// email is the account address the password is being set for.
func (p PasswordPolicy) Check(password, email string) error {
	minLength := p.MinLength
	if minLength < MinPasswordLength {
		minLength = MinPasswordLength
	}

	var unmet []string
	if utf8.RuneCountInString(password) < minLength {
		unmet = append(unmet, fmt.Sprintf("be at least %d characters", minLength))
	}
	if len(password) > MaxPasswordBytes {
		unmet = append(unmet, fmt.Sprintf("be at most %d bytes", MaxPasswordBytes))
	}
	if characterClasses(password) < 3 {
		unmet = append(unmet, "contain at least 3 of: uppercase, lowercase, numbers, special characters")
	}
	if local, _, ok := strings.Cut(strings.ToLower(strings.TrimSpace(email)), "@"); ok &&
		len(local) >= minEmailFragment && strings.Contains(strings.ToLower(password), local) {
		unmet = append(unmet, "not contain the email address")
	}

	if len(unmet) > 0 {
		return &WeakPasswordError{Unmet: unmet}
	}
	return nil
}

func characterClasses(password string) int {
	var upper, lower, number, special bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			upper = true
		case unicode.IsLower(char):
			lower = true
		case unicode.IsNumber(char):
			number = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			special = true
		}
	}

	n := 0
	for _, has := range []bool{upper, lower, number, special} {
		if has {
			n++
		}
	}
	return n
}

// PasswordManager hashes and verifies account passwords
type PasswordManager struct {
	cost   int
	policy PasswordPolicy
}

// NewPasswordManager creates a password manager. An out of range cost falls
// back to DefaultBcryptCost.
func NewPasswordManager(bcryptCost, minLength int) *PasswordManager {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = DefaultBcryptCost
	}
	return &PasswordManager{
		cost:   bcryptCost,
		policy: PasswordPolicy{MinLength: minLength},
	}
}

// Policy returns the strength policy new passwords must satisfy.
func (p *PasswordManager) Policy() PasswordPolicy {
	return p.policy
}

// HashPassword hashes a password using bcrypt
func (p *PasswordManager) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", &WeakPasswordError{Unmet: []string{fmt.Sprintf("be at most %d bytes", MaxPasswordBytes)}}
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches hash
func (p *PasswordManager) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
