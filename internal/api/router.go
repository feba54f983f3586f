// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"user-service/internal/api/handler"
	"user-service/internal/api/middleware"
	"user-service/pkg/db"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(
	userHandler *handler.UserHandler,
	healthHandler *handler.HealthHandler,
	pool *db.Pool,
	logger *slog.Logger,
	requestTimeout time.Duration,
) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if requestTimeout > 0 {
		r.Use(chimw.Timeout(requestTimeout))
	}

	r.Get("/", healthHandler.Root)
	r.Get("/healthz", healthHandler.Healthz)

	// User routes each hold one pooled connection for the whole request.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(pool, logger))

		r.Post("/users", userHandler.Create)
		r.Get("/user", userHandler.FetchByUsername)
		r.Patch("/user", userHandler.Update)
	})

	return r
}
