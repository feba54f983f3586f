// internal/repository/postgres/user_pg.go
package postgres

import (
	"context"
	"fmt"

	"user-service/internal/domain"
	"user-service/internal/repository"
)

// UserRepository implements repository.UserRepository. The statements are
// portable SQL, so it serves both the Postgres and the SQLite drivers.
type UserRepository struct {
	insertQuery string
	selectQuery string
	updateQuery string
}

// NewUserRepository creates a UserRepository over table. The name must
// already be validated as a plain identifier.
func NewUserRepository(table string) repository.UserRepository {
	return &UserRepository{
		insertQuery: fmt.Sprintf(`INSERT INTO %s (username) VALUES (?) RETURNING id`, table),
		selectQuery: fmt.Sprintf(`SELECT id, username FROM %s WHERE username = ?`, table),
		updateQuery: fmt.Sprintf(`UPDATE %s SET username = ? WHERE id = ? RETURNING id, username`, table),
	}
}

// CreateUser inserts a new user and stores the generated ID on user.
func (r *UserRepository) CreateUser(ctx context.Context, q repository.DBExecutor, user *domain.User) error {
	if err := q.FetchOne(ctx, &user.ID, r.insertQuery, user.Username); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername retrieves a user by their username.
func (r *UserRepository) GetUserByUsername(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error) {
	var user domain.User
	if err := q.FetchOne(ctx, &user, r.selectQuery, username); err != nil {
		return nil, fmt.Errorf("failed to get user by username '%s': %w", username, err)
	}
	return &user, nil
}

// UpdateUser changes the username of the user with user.ID.
func (r *UserRepository) UpdateUser(ctx context.Context, q repository.DBExecutor, user *domain.User) error {
	if err := q.FetchOne(ctx, user, r.updateQuery, user.Username, user.ID); err != nil {
		return fmt.Errorf("failed to update user %d: %w", user.ID, err)
	}
	return nil
}
