// pkg/db/faults.go
package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Pool-level failures. All of them mean the store could not be reached in time.
var (
	ErrPoolExhausted  = errors.New("connection pool exhausted")
	ErrAcquireTimeout = errors.New("timed out waiting for a pooled connection")
	ErrConnectFailed  = errors.New("failed to connect to database")
	ErrPoolClosed     = errors.New("connection pool is closed")
)

// pqUniqueViolation is SQLSTATE 23505.
const pqUniqueViolation = pq.ErrorCode("23505")

// IsUnavailable reports whether err means no usable connection could be
// obtained, either from the pool or because the session broke mid-statement.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) ||
		errors.Is(err, ErrAcquireTimeout) ||
		errors.Is(err, ErrConnectFailed) ||
		errors.Is(err, ErrPoolClosed) ||
		IsConnectionError(err)
}

// IsConnectionError reports whether err is a connection-level fault (broken
// pipe, protocol desync, abandoned statement) after which the session must not
// be reused. Application-level errors such as constraint violations or missing
// rows return false.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	// An abandoned statement may leave unread results on the wire.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08": // connection_exception
			return true
		case "57": // operator_intervention: admin_shutdown, crash_shutdown, cannot_connect_now
			return pqErr.Code != "57014" // query_canceled leaves the session usable
		}
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB:
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err is a uniqueness constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
