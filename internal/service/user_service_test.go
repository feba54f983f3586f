// internal/service/user_service_test.go
package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"user-service/internal/domain"
	"user-service/internal/repository"
	"user-service/internal/repository/postgres"
	"user-service/internal/testutil"
	"user-service/internal/util"
)

// MockDBExecutor is a mock implementation of repository.DBExecutor.
type MockDBExecutor struct {
	mock.Mock
}

func (m *MockDBExecutor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	called := m.Called(ctx, query, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).(sql.Result), called.Error(1)
}

func (m *MockDBExecutor) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	called := m.Called(ctx, query, args)
	if called.Get(0) == nil {
		return nil, called.Error(1)
	}
	return called.Get(0).(*sqlx.Rows), called.Error(1)
}

func (m *MockDBExecutor) FetchOne(ctx context.Context, dest any, query string, args ...any) error {
	called := m.Called(ctx, dest, query, args)
	return called.Error(0)
}

// MockUserRepository is a mock implementation of repository.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) CreateUser(ctx context.Context, q repository.DBExecutor, user *domain.User) error {
	args := m.Called(ctx, q, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetUserByUsername(ctx context.Context, q repository.DBExecutor, username string) (*domain.User, error) {
	args := m.Called(ctx, q, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, q repository.DBExecutor, user *domain.User) error {
	args := m.Called(ctx, q, user)
	return args.Error(0)
}

func TestCreateUser(t *testing.T) {
	t.Run("StoresUsernameAsGiven", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		mockDBExecutor := new(MockDBExecutor)
		service := NewUserService(mockUserRepo)

		mockUserRepo.On("CreateUser", ctx, mockDBExecutor, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "  alice "
		})).Run(func(args mock.Arguments) {
			args.Get(2).(*domain.User).ID = 1
		}).Return(nil).Once()

		user, err := service.CreateUser(ctx, mockDBExecutor, "  alice ")
		require.NoError(t, err)
		assert.Equal(t, &domain.User{ID: 1, Username: "  alice "}, user)
		mock.AssertExpectationsForObjects(t, mockUserRepo, mockDBExecutor)
	})

	t.Run("BlankUsername", func(t *testing.T) {
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)

		_, err := service.CreateUser(context.Background(), new(MockDBExecutor), "   ")
		assert.ErrorIs(t, err, util.ErrInvalidInput)

		var fieldErr *util.FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "username", fieldErr.Field)
		mockUserRepo.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Conflict", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)

		mockUserRepo.On("CreateUser", ctx, mock.Anything, mock.AnythingOfType("*domain.User")).
			Return(util.ErrConflict).Once()

		_, err := service.CreateUser(ctx, new(MockDBExecutor), "alice")
		assert.ErrorIs(t, err, util.ErrConflict)
		mockUserRepo.AssertExpectations(t)
	})
}

func TestGetUserByUsername(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)
		expected := &domain.User{ID: 7, Username: "alice"}

		mockUserRepo.On("GetUserByUsername", ctx, mock.Anything, "alice").Return(expected, nil).Once()

		user, err := service.GetUserByUsername(ctx, new(MockDBExecutor), "alice")
		require.NoError(t, err)
		assert.Equal(t, expected, user)
		mockUserRepo.AssertExpectations(t)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)

		mockUserRepo.On("GetUserByUsername", ctx, mock.Anything, "bob").Return(nil, util.ErrNotFound).Once()

		_, err := service.GetUserByUsername(ctx, new(MockDBExecutor), "bob")
		assert.ErrorIs(t, err, util.ErrNotFound)
	})

	t.Run("MissingUsername", func(t *testing.T) {
		service := NewUserService(new(MockUserRepository))

		_, err := service.GetUserByUsername(context.Background(), new(MockDBExecutor), "")
		assert.ErrorIs(t, err, util.ErrInvalidInput)
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("Renames", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)

		mockUserRepo.On("UpdateUser", ctx, mock.Anything, &domain.User{ID: 1, Username: "alicia"}).Return(nil).Once()

		user, err := service.UpdateUser(ctx, new(MockDBExecutor), 1, "alicia")
		require.NoError(t, err)
		assert.Equal(t, &domain.User{ID: 1, Username: "alicia"}, user)
		mockUserRepo.AssertExpectations(t)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		service := NewUserService(new(MockUserRepository))

		_, err := service.UpdateUser(context.Background(), new(MockDBExecutor), 0, "alicia")
		var fieldErr *util.FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "id", fieldErr.Field)

		_, err = service.UpdateUser(context.Background(), new(MockDBExecutor), 1, "")
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, "username", fieldErr.Field)
	})

	t.Run("RepositoryFailure", func(t *testing.T) {
		ctx := context.Background()
		mockUserRepo := new(MockUserRepository)
		service := NewUserService(mockUserRepo)
		dbErr := errors.New("db error")

		mockUserRepo.On("UpdateUser", ctx, mock.Anything, mock.AnythingOfType("*domain.User")).Return(dbErr).Once()

		_, err := service.UpdateUser(ctx, new(MockDBExecutor), 1, "alicia")
		assert.ErrorIs(t, err, dbErr)
	})
}

// TestUserServiceAgainstStore runs the service over a real leased connection.
func TestUserServiceAgainstStore(t *testing.T) {
	ctx := context.Background()
	_, pool := testutil.NewStore(t, testutil.PoolConfig(2))
	q := repository.NewExecutor(testutil.Lease(t, pool))
	service := NewUserService(postgres.NewUserRepository(testutil.UsersTable))

	created, err := service.CreateUser(ctx, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	fetched, err := service.GetUserByUsername(ctx, q, "alice")
	require.NoError(t, err)
	assert.Equal(t, created, fetched)

	updated, err := service.UpdateUser(ctx, q, created.ID, "alicia")
	require.NoError(t, err)
	assert.Equal(t, "alicia", updated.Username)

	_, err = service.UpdateUser(ctx, q, 99, "ghost")
	assert.ErrorIs(t, err, util.ErrNotFound)
}
