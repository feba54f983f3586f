// internal/api/handler/errors.go
package handler

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"user-service/internal/api/types"
)

// respondWithJSON sends payload as a JSON response.
func respondWithJSON(logger *slog.Logger, w http.ResponseWriter, code int, payload any) {
	if err := types.WriteJSON(w, code, payload); err != nil {
		logger.Error("Failed to write JSON response", "error", err)
	}
}

// respondWithError translates err into its public status and message. The
// full error is only logged. Once the request context is done nothing is
// written: the client is gone, or the router's timeout answers 504.
func respondWithError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if ctxErr := r.Context().Err(); ctxErr != nil {
		logger.Warn("Request ended before completion", "request_id", chimw.GetReqID(r.Context()), "reason", ctxErr, "error", err)
		return
	}

	status, body := types.TranslateError(err)

	attrs := []any{"request_id", chimw.GetReqID(r.Context()), "status", status, "error", err}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", attrs...)
	} else {
		logger.Info("Request rejected", attrs...)
	}

	respondWithJSON(logger, w, status, body)
}
