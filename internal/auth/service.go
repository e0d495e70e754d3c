package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trading-journal/internal/logging"
	"trading-journal/internal/records"
)

// Service handles authentication operations
type Service struct {
	users           records.UserStore
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	config          Config
	logger          *logging.Logger
	now             func() time.Time
}

// NewService creates a new authentication service
func NewService(users records.UserStore, config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if config.AccessTokenDuration == 0 {
		config.AccessTokenDuration = DefaultConfig().AccessTokenDuration
	}

	return &Service{
		users:           users,
		jwtManager:      NewJWTManager(config.JWTSecret, config.Issuer, config.AccessTokenDuration),
		passwordManager: NewPasswordManager(config.BcryptCost, config.MinPasswordLength),
		config:          config,
		logger:          logging.WithComponent("auth"),
		now:             time.Now,
	}, nil
}

// GetJWTManager returns the JWT manager for use in middleware
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Register creates a new user account and signs them in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResponse, error) {
	if err := s.passwordManager.Policy().Check(req.Password, req.Email); err != nil {
		return nil, AuthError{Code: ErrWeakPassword.Code, Message: err.Error()}
	}

	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	var weak *WeakPasswordError
	if errors.As(err, &weak) {
		return nil, AuthError{Code: ErrWeakPassword.Code, Message: weak.Error()}
	}
	if err != nil {
		return nil, err
	}

	user := &records.User{
		ID:           uuid.NewString(),
		Email:        records.NormalizeEmail(req.Email),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, records.ErrConflict) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.issue(user)
}

// Login authenticates a user and returns an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, records.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !s.passwordManager.VerifyPassword(req.Password, user.PasswordHash) {
		s.logger.Debug("password verification failed", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WithError(err).Warn("failed to record last login", "user_id", user.ID)
	} else {
		user.LastLoginAt = &now
	}

	return s.issue(user)
}

// GetUser returns the profile of an authenticated user.
func (s *Service) GetUser(ctx context.Context, userID string) (*UserResponse, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, records.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) issue(user *records.User) (*LoginResponse, error) {
	token, err := s.jwtManager.GenerateAccessToken(UserClaims{UserID: user.ID, Email: user.Email})
	if err != nil {
		return nil, err
	}
	return &LoginResponse{
		User:        toUserResponse(user),
		AccessToken: token,
		ExpiresIn:   s.jwtManager.GetAccessTokenDuration(),
		TokenType:   "Bearer",
	}, nil
}

func toUserResponse(u *records.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}
