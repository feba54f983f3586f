// internal/repository/executor.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/jmoiron/sqlx"

	"user-service/internal/util"
	"user-service/pkg/db"
)

// DBExecutor defines the statement operations repositories run.
// *Executor implements it on top of one leased connection.
type DBExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	FetchOne(ctx context.Context, dest any, query string, args ...any) error
}

// Executor runs statements on a single leased connection. Queries are written
// with '?' placeholders and rebound for the connection's driver.
type Executor struct {
	conn *db.PooledConnection
}

// NewExecutor binds an Executor to conn for the duration of its lease.
func NewExecutor(conn *db.PooledConnection) *Executor {
	return &Executor{conn: conn}
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := e.conn.ExecContext(ctx, e.conn.Rebind(query), args...)
	e.conn.Observe(err)
	if err != nil {
		return nil, translate(err)
	}
	return res, nil
}

// Query runs a statement and returns its rows. The caller must close them.
func (e *Executor) Query(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	rows, err := e.conn.QueryxContext(ctx, e.conn.Rebind(query), args...)
	e.conn.Observe(err)
	if err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

// FetchOne runs a statement expected to produce exactly one row and scans it
// into dest. A struct dest is scanned by column name, anything else positionally.
// No row yields util.ErrNotFound; a second row or a column that does not fit
// dest yields util.ErrDataError.
func (e *Executor) FetchOne(ctx context.Context, dest any, query string, args ...any) error {
	rows, err := e.conn.QueryxContext(ctx, e.conn.Rebind(query), args...)
	if err != nil {
		e.conn.Observe(err)
		return translate(err)
	}
	defer rows.Close()

	if !rows.Next() {
		err := rows.Err()
		e.conn.Observe(err)
		if err != nil {
			return translate(err)
		}
		return util.ErrNotFound
	}

	if err := scanRow(rows, dest); err != nil {
		e.conn.Observe(err)
		if db.IsConnectionError(err) {
			return translate(err)
		}
		return fmt.Errorf("%w: %w", util.ErrDataError, err)
	}

	if rows.Next() {
		e.conn.Observe(nil)
		return fmt.Errorf("%w: query returned more than one row", util.ErrDataError)
	}
	err = rows.Err()
	e.conn.Observe(err)
	if err != nil {
		return translate(err)
	}
	return nil
}

var timeType = reflect.TypeOf(time.Time{})

func scanRow(rows *sqlx.Rows, dest any) error {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("scan destination must be a non-nil pointer")
	}
	if _, ok := dest.(sql.Scanner); !ok {
		if t := v.Elem().Type(); t.Kind() == reflect.Struct && t != timeType {
			return rows.StructScan(dest)
		}
	}
	return rows.Scan(dest)
}

// translate maps driver failures onto the application error kinds.
func translate(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return util.ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", util.ErrConflict, err)
	case db.IsConnectionError(err):
		return fmt.Errorf("%w: %w", util.ErrUnavailable, err)
	default:
		return err
	}
}
