// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"user-service/internal/util"
	"user-service/pkg/db" // Import db package for its Config structs
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort      string        `env:"SERVER_PORT" envDefault:"8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	DB   DBConfig
	Pool PoolConfig
	Log  LogConfig
}

// DBConfig is the database endpoint and the table the service reads and writes.
type DBConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"postgres"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"mysecretpassword"`
	Name     string `env:"DB_NAME" envDefault:"user_db"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	Path     string `env:"DB_PATH" envDefault:"./users.db"`
	Table    string `env:"DB_TABLE" envDefault:"users"`
}

// PoolConfig bounds the connection pool.
type PoolConfig struct {
	MinConns         int           `env:"DB_POOL_MIN" envDefault:"2"`
	MaxConns         int           `env:"DB_POOL_MAX" envDefault:"10"`
	AcquireTimeout   time.Duration `env:"DB_ACQUIRE_TIMEOUT" envDefault:"5s"`
	IdleCheckAfter   time.Duration `env:"DB_IDLE_CHECK_AFTER" envDefault:"30s"`
	ValidateSchedule string        `env:"DB_VALIDATE_SCHEDULE" envDefault:"@every 30s"`
	ConnectRetries   int           `env:"DB_CONNECT_RETRIES" envDefault:"1"`
	ConnectBackoff   time.Duration `env:"DB_CONNECT_BACKOFF" envDefault:"200ms"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"`
	Format     string `env:"LOG_FORMAT" envDefault:"json"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"30"`
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is read first when present; real
// environment variables take precedence over it.
func LoadConfig() (*AppConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	switch c.DB.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("invalid DB_DRIVER %q: must be %q or %q", c.DB.Driver, db.DriverPostgres, db.DriverSQLite)
	}
	if !db.ValidIdentifier(c.DB.Table) {
		return fmt.Errorf("invalid DB_TABLE %q: must be a plain SQL identifier", c.DB.Table)
	}
	if err := c.PoolSettings().Validate(); err != nil {
		return fmt.Errorf("invalid pool configuration: %w", err)
	}
	return nil
}

// Database returns the connection settings in the form pkg/db expects.
func (c *AppConfig) Database() db.Config {
	return db.Config{
		Driver:   c.DB.Driver,
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		User:     c.DB.User,
		Password: c.DB.Password,
		DBName:   c.DB.Name,
		SSLMode:  c.DB.SSLMode,
		Path:     c.DB.Path,
	}
}

// PoolSettings returns the pool bounds in the form pkg/db expects.
func (c *AppConfig) PoolSettings() db.PoolConfig {
	return db.PoolConfig{
		MinConns:         c.Pool.MinConns,
		MaxConns:         c.Pool.MaxConns,
		AcquireTimeout:   c.Pool.AcquireTimeout,
		IdleCheckAfter:   c.Pool.IdleCheckAfter,
		ValidateSchedule: c.Pool.ValidateSchedule,
		ConnectRetries:   c.Pool.ConnectRetries,
		ConnectBackoff:   c.Pool.ConnectBackoff,
	}
}

// Logging returns the logger settings.
func (c *AppConfig) Logging() util.LogConfig {
	return util.LogConfig{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}
}
