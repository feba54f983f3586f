// internal/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmoiron/sqlx"

	router "user-service/internal/api"
	"user-service/internal/api/handler"
	"user-service/internal/config"
	"user-service/internal/repository"
	"user-service/internal/repository/postgres"
	"user-service/internal/service"
	"user-service/internal/util"
	"user-service/pkg/db"
)

// Application holds all the initialized components of the application.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	DB     *sqlx.DB
	Pool   *db.Pool

	UserRepository repository.UserRepository
	UserService    service.UserService

	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize loads configuration from the environment and builds every component.
func (app *Application) Initialize(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return app.InitializeWithConfig(ctx, cfg)
}

// InitializeWithConfig builds every component from an already loaded configuration.
func (app *Application) InitializeWithConfig(ctx context.Context, cfg *config.AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	app.Config = cfg

	app.Logger = util.InitLogger(cfg.Logging())
	app.Logger.Info("Application configuration loaded", "driver", cfg.DB.Driver, "table", cfg.DB.Table)

	database, err := db.Open(cfg.Database(), cfg.Pool.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	app.DB = database

	pool, err := db.NewPool(database, cfg.PoolSettings(), app.Logger)
	if err != nil {
		_ = database.Close()
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.StartValidation(); err != nil {
		_ = pool.Close(ctx)
		_ = database.Close()
		return err
	}
	app.Pool = pool
	app.Logger.Info("Connection pool ready", "min", cfg.Pool.MinConns, "max", cfg.Pool.MaxConns)

	app.UserRepository = postgres.NewUserRepository(cfg.DB.Table)
	app.UserService = service.NewUserService(app.UserRepository)

	userHandler := handler.NewUserHandler(app.UserService, app.Logger)
	healthHandler := handler.NewHealthHandler(app.Pool, app.Logger)
	app.HTTPHandler = router.NewRouter(userHandler, healthHandler, app.Pool, app.Logger, cfg.RequestTimeout)
	app.Logger.Info("HTTP router and handlers initialized")

	return nil
}

// Shutdown drains the connection pool, waiting for in-flight requests until
// ctx expires, then closes the database handle.
func (app *Application) Shutdown(ctx context.Context) error {
	if app.Logger == nil {
		return nil
	}
	app.Logger.Info("Shutting down application...")

	var errs []error
	if app.Pool != nil {
		if err := app.Pool.Close(ctx); err != nil {
			app.Logger.Error("Connection pool did not drain cleanly", "error", err)
			errs = append(errs, err)
		}
	}
	if app.DB != nil {
		if err := app.DB.Close(); err != nil {
			app.Logger.Error("Failed to close database", "error", err)
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	app.Logger.Info("Application shut down gracefully")
	return nil
}
