// internal/repository/user_repo.go
package repository

import (
	"context"

	"user-service/internal/domain"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	// CreateUser inserts user and sets its generated ID.
	CreateUser(ctx context.Context, q DBExecutor, user *domain.User) error
	// GetUserByUsername retrieves a user by their username.
	GetUserByUsername(ctx context.Context, q DBExecutor, username string) (*domain.User, error)
	// UpdateUser renames the user with user.ID and refreshes user from the stored row.
	UpdateUser(ctx context.Context, q DBExecutor, user *domain.User) error
}
