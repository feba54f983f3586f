// internal/api/types/response.go
package types

import (
	"encoding/json"
	"errors"
	"net/http"

	"user-service/internal/util"
	"user-service/pkg/db"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string   `json:"status"`
	Pool   db.Stats `json:"pool"`
}

// TranslateError maps an error from any layer onto the status code and the
// public message sent to the client. Internal detail never leaves here.
func TranslateError(err error) (int, ErrorResponse) {
	var fieldErr *util.FieldError
	switch {
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest, ErrorResponse{Error: fieldErr.Error()}
	case util.IsError(err, util.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Error: "missing or invalid field"}
	case util.IsError(err, util.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "resource not found"}
	case util.IsError(err, util.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "resource already exists"}
	case util.IsError(err, util.ErrUnavailable), db.IsUnavailable(err):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "service temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	}
}

// WriteJSON encodes payload as the response body with the given status.
func WriteJSON(w http.ResponseWriter, code int, payload any) error {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, err = w.Write(response)
	return err
}
