package auth

import (
	"time"

	"trading-journal/config"
)

// UserClaims represents the JWT claims for a user
type UserClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"max=100"`
}

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned by both register and login.
type LoginResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresIn   int64        `json:"expiresIn"` // seconds
	TokenType   string       `json:"tokenType"` // Always "Bearer"
}

// UserResponse represents user data returned to the client
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Config holds authentication configuration
type Config struct {
	JWTSecret           string
	Issuer              string
	AccessTokenDuration time.Duration
	MinPasswordLength   int
	BcryptCost          int
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:           "", // Must be set
		Issuer:              "trading-journal",
		AccessTokenDuration: 24 * time.Hour,
		MinPasswordLength:   MinPasswordLength,
		BcryptCost:          DefaultBcryptCost,
	}
}

// ConfigFrom maps the application auth section, keeping defaults for unset
// fields.
func ConfigFrom(cfg config.AuthConfig) Config {
	c := DefaultConfig()
	c.JWTSecret = cfg.JWTSecret
	if cfg.Issuer != "" {
		c.Issuer = cfg.Issuer
	}
	if cfg.AccessTokenDuration > 0 {
		c.AccessTokenDuration = cfg.AccessTokenDuration
	}
	if cfg.MinPasswordLength > 0 {
		c.MinPasswordLength = cfg.MinPasswordLength
	}
	if cfg.BcryptCost > 0 {
		c.BcryptCost = cfg.BcryptCost
	}
	return c
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidCredentials = AuthError{Code: "INVALID_CREDENTIALS", Message: "invalid email or password"}
	ErrUserNotFound       = AuthError{Code: "USER_NOT_FOUND", Message: "user not found"}
	ErrEmailExists        = AuthError{Code: "EMAIL_EXISTS", Message: "email already registered"}
	ErrInvalidToken       = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired       = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized       = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrWeakPassword       = AuthError{Code: "WEAK_PASSWORD", Message: "password does not meet requirements"}
)
