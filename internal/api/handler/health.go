// internal/api/handler/health.go
package handler

import (
	"log/slog"
	"net/http"

	"user-service/internal/api/types"
	"user-service/pkg/db"
)

// HealthHandler serves the liveness endpoints, which do not hold a lease.
type HealthHandler struct {
	pool   *db.Pool
	logger *slog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *db.Pool, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, logger: logger}
}

// Root handles GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Hello, World!"))
}

// Healthz handles GET /healthz. It pings the store on a briefly leased
// connection and reports the pool counters.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := h.pool.Acquire(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
		conn.Observe(err)
		h.pool.Release(conn, conn.Healthy())
	}

	if err != nil {
		h.logger.Warn("Health check failed", "error", err)
		respondWithJSON(h.logger, w, http.StatusServiceUnavailable, types.HealthResponse{Status: "unavailable", Pool: h.pool.Stats()})
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, types.HealthResponse{Status: "ok", Pool: h.pool.Stats()})
}
