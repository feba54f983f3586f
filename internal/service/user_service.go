// internal/service/user_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"user-service/internal/domain"
	"user-service/internal/repository"
	"user-service/internal/util"
)

// UserService defines the business operations on users. Every call runs on
// the executor of the caller's leased connection.
type UserService interface {
	CreateUser(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, q repository.DBExecutor, id int64, username string) (*domain.User, error)
}

// userService implements the UserService interface.
type userService struct {
	userRepo repository.UserRepository
}

// NewUserService creates a new instance of UserService.
func NewUserService(userRepo repository.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// CreateUser stores a new user. The username is kept exactly as given; a
// blank one is rejected.
func (s *userService) CreateUser(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, util.InvalidField("username")
	}

	user := &domain.User{Username: username}
	if err := s.userRepo.CreateUser(ctx, q, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername looks a user up by exact username.
func (s *userService) GetUserByUsername(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, util.InvalidField("username")
	}

	user, err := s.userRepo.GetUserByUsername(ctx, q, username)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateUser renames the user with id.
func (s *userService) UpdateUser(ctx context.Context, q repository.DBExecutor, id int64, username string) (*domain.User, error) {
	if id <= 0 {
		return nil, util.InvalidField("id")
	}
	if strings.TrimSpace(username) == "" {
		return nil, util.InvalidField("username")
	}

	user := &domain.User{ID: id, Username: username}
	if err := s.userRepo.UpdateUser(ctx, q, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}
