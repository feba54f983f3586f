// pkg/db/conn.go
package db

import (
	"database/sql/driver"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PooledConnection is a leased handle to one live database session. It is
// owned by a single request between Acquire and Release.
type PooledConnection struct {
	*sqlx.Conn

	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	idleSince time.Time
	lastErr   error
}

func newPooledConnection(conn *sqlx.Conn) *PooledConnection {
	now := time.Now()
	return &PooledConnection{
		Conn:      conn,
		ID:        uuid.NewString(),
		CreatedAt: now,
		idleSince: now,
	}
}

// Observe records the outcome of the latest operation run through the
// connection. A nil err clears any earlier failure.
func (c *PooledConnection) Observe(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// LastError returns the error recorded by the latest Observe.
func (c *PooledConnection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Healthy reports whether the session can go back to the pool, i.e. the last
// operation did not fail with a connection-level fault.
func (c *PooledConnection) Healthy() bool {
	return !IsConnectionError(c.LastError())
}

func (c *PooledConnection) resetLease() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *PooledConnection) markIdle() {
	c.mu.Lock()
	c.idleSince = time.Now()
	c.mu.Unlock()
}

func (c *PooledConnection) idleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.idleSince)
}

// close hands the session back to database/sql, which closes it because it
// keeps no idle connections of its own.
func (c *PooledConnection) close() {
	_ = c.Conn.Close()
}

// discard tells database/sql the session is bad so it is closed rather than
// recycled, whatever the idle settings are.
func (c *PooledConnection) discard() {
	_ = c.Conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = c.Conn.Close()
}
