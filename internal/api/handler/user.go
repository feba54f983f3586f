// internal/api/handler/user.go
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"user-service/internal/api/middleware"
	"user-service/internal/domain"
	"user-service/internal/repository"
	"user-service/internal/service"
	"user-service/internal/util"
)

// UserHandler handles HTTP requests related to users. Every route it serves
// must sit behind middleware.Guard.
type UserHandler struct {
	service service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: svc,
		logger:  logger,
	}
}

var errNoLease = errors.New("no database connection leased to request")

// executor binds a query executor to the request's leased connection.
func (h *UserHandler) executor(r *http.Request) (repository.DBExecutor, error) {
	conn, ok := middleware.LeaseFromContext(r.Context())
	if !ok {
		return nil, errNoLease
	}
	return repository.NewExecutor(conn), nil
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, r, util.InvalidField("body"))
		return
	}

	q, err := h.executor(r)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), q, req.Username)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	h.logger.Info("User created", "id", user.ID, "username", user.Username)
	respondWithJSON(h.logger, w, http.StatusCreated, user)
}

// FetchByUsername handles GET /user?username=.
func (h *UserHandler) FetchByUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		respondWithError(h.logger, w, r, util.InvalidField("username"))
		return
	}

	q, err := h.executor(r)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	user, err := h.service.GetUserByUsername(r.Context(), q, username)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	respondWithJSON(h.logger, w, http.StatusOK, user)
}

// Update handles PATCH /user.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(h.logger, w, r, util.InvalidField("body"))
		return
	}

	q, err := h.executor(r)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), q, req.ID, req.Username)
	if err != nil {
		respondWithError(h.logger, w, r, err)
		return
	}

	h.logger.Info("User updated", "id", user.ID, "username", user.Username)
	respondWithJSON(h.logger, w, http.StatusOK, user)
}
