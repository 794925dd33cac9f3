package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/TheScottyB/fabric-web/internal/middleware"
	"github.com/TheScottyB/fabric-web/internal/models"
	"github.com/TheScottyB/fabric-web/internal/services"
)

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: r.Header.Get(middleware.RequestIDHeader),
	}
}

// handleServiceError turns any failure raised before streaming began into
// exactly one JSON error response.
func handleServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var (
		validation  *services.ValidationError
		resolution  *services.ResolutionError
		unavailable *services.UpstreamUnavailableError
		application *services.UpstreamApplicationError
	)

	switch {
	case errors.Is(err, context.Canceled):
		// Caller went away; there is nobody to answer.
		log.InfoContext(r.Context(), "request cancelled by caller")
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", validation.Message, r))
	case errors.As(err, &resolution):
		writeJSON(w, http.StatusBadRequest, errorResp("INVALID_URL", "Invalid YouTube URL", r))
	case errors.As(err, &unavailable):
		log.ErrorContext(r.Context(), "backend unavailable", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("UPSTREAM_UNAVAILABLE", unavailable.Error(), r))
	case errors.As(err, &application):
		log.ErrorContext(r.Context(), "backend error", "status", application.StatusCode, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("UPSTREAM_ERROR", application.Error(), r))
	case errors.Is(err, services.ErrEmptyUpstreamBody):
		log.ErrorContext(r.Context(), "backend returned no body")
		writeJSON(w, http.StatusInternalServerError, errorResp("EMPTY_UPSTREAM_BODY", err.Error(), r))
	default:
		log.ErrorContext(r.Context(), "request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", err.Error(), r))
	}
}
