package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trading-journal/internal/records"
)

// userRepository implements records.UserStore on the users table.
type userRepository struct {
	db *DB
}

// CreateUser creates a new user
func (r *userRepository) CreateUser(ctx context.Context, user *records.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, created_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		user.ID,
		records.NormalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.CreatedAt,
		user.LastLoginAt,
	)
	if isUniqueViolation(err) {
		return records.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by ID
func (r *userRepository) GetUserByID(ctx context.Context, userID string) (*records.User, error) {
	return r.getUser(ctx, "id", userID)
}

// GetUserByEmail retrieves a user by email
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*records.User, error) {
	return r.getUser(ctx, "email", records.NormalizeEmail(email))
}

func (r *userRepository) getUser(ctx context.Context, key, value string) (*records.User, error) {
	query := `
		SELECT id, email, name, password_hash, created_at, last_login_at
		FROM users WHERE ` + key + ` = $1
	`

	user := &records.User{}
	err := r.db.Pool.QueryRow(ctx, query, value).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash,
		&user.CreatedAt, &user.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	user.LastLoginAt = utcPtr(user.LastLoginAt)
	return user, nil
}

// UpdateLastLogin records a successful login
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return records.ErrNotFound
	}
	return nil
}
