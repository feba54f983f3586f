// internal/testutil/store.go
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"user-service/pkg/db"
)

// UsersTable is the table name the test stores are created with.
const UsersTable = "users"

// SQLiteConfig points at a fresh database file under t's temp dir.
func SQLiteConfig(t testing.TB) db.Config {
	t.Helper()
	return db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "users.db")}
}

// CreateUsersTable creates the users table in the shape the service expects.
func CreateUsersTable(t testing.TB, database *sqlx.DB, table string) {
	t.Helper()
	_, err := database.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT NOT NULL UNIQUE)`, table))
	require.NoError(t, err)
}

// NewStore opens an on-disk SQLite database with a users table and a pool
// over it. Both are closed when the test ends.
func NewStore(t testing.TB, cfg db.PoolConfig) (*sqlx.DB, *db.Pool) {
	t.Helper()

	database, err := db.Open(SQLiteConfig(t), cfg.MaxConns)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	CreateUsersTable(t, database, UsersTable)

	pool, err := db.NewPool(database, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})
	return database, pool
}

// PoolConfig is a small pool with short timeouts.
func PoolConfig(maxConns int) db.PoolConfig {
	return db.PoolConfig{
		MinConns:       1,
		MaxConns:       maxConns,
		AcquireTimeout: 200 * time.Millisecond,
		IdleCheckAfter: time.Minute,
		ConnectRetries: 1,
		ConnectBackoff: time.Millisecond,
	}
}

// Lease acquires a connection from pool and releases it when the test ends.
func Lease(t testing.TB, pool *db.Pool) *db.PooledConnection {
	t.Helper()
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Release(conn, conn.Healthy()) })
	return conn
}
