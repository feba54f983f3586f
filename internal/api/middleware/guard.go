// internal/api/middleware/guard.go
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"user-service/internal/api/types"
	"user-service/pkg/db"
)

type leaseKey struct{}

// WithLease returns a copy of ctx carrying conn.
func WithLease(ctx context.Context, conn *db.PooledConnection) context.Context {
	return context.WithValue(ctx, leaseKey{}, conn)
}

// LeaseFromContext returns the connection leased to the current request.
func LeaseFromContext(ctx context.Context) (*db.PooledConnection, bool) {
	conn, ok := ctx.Value(leaseKey{}).(*db.PooledConnection)
	return conn, ok && conn != nil
}

// Guard leases one pooled connection for the lifetime of each request and
// hands it back exactly once when the handler finishes, panics included.
// A lease is returned as healthy only if its last statement did not hit a
// connection-level fault and the request was not cancelled while it ran.
// When no connection can be leased the handler is not called.
func Guard(pool *db.Pool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqID := chimw.GetReqID(ctx)

			conn, err := pool.Acquire(ctx)
			if err != nil {
				logger.Warn("Failed to lease database connection", "request_id", reqID, "error", err)
				if ctx.Err() != nil {
					return
				}
				status, body := types.TranslateError(err)
				_ = types.WriteJSON(w, status, body)
				return
			}
			logger.Debug("Leased database connection", "request_id", reqID, "conn_id", conn.ID)

			defer func() {
				rec := recover()
				healthy := rec == nil && conn.Healthy() && ctx.Err() == nil
				pool.Release(conn, healthy)
				logger.Debug("Released database connection", "request_id", reqID, "conn_id", conn.ID, "healthy", healthy)
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(w, r.WithContext(WithLease(ctx, conn)))
		}
		return http.HandlerFunc(fn)
	}
}
