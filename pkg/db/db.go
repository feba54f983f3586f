// pkg/db/db.go
package db

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver for local runs and tests
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// sqlx only knows the cgo driver name "sqlite3"; modernc registers "sqlite".
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds database connection configuration.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string // SQLite database file, used when Driver is "sqlite"
}

// DSN builds the driver-specific data source name.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverPostgres, "":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite driver requires a database path")
		}
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "journal_mode(WAL)")
		return c.Path + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// DriverName returns the registered database/sql driver name.
func (c Config) DriverName() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

// Open prepares a *sqlx.DB that the Pool uses as its dialer. No connection is
// made here; the pool opens sessions lazily on first use.
//
// database/sql keeps no idle connections of its own (the Pool owns the idle set)
// and is capped at maxConns as a second guard on the open-connection bound.
func Open(cfg Config, maxConns int) (*sqlx.DB, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	database, err := sqlx.Open(cfg.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.DriverName(), err)
	}

	database.SetMaxOpenConns(maxConns)
	database.SetMaxIdleConns(0)

	return database, nil
}

// ValidIdentifier reports whether name is safe to splice into SQL as a table name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
