package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/TheScottyB/fabric-web/internal/logging"
	"github.com/TheScottyB/fabric-web/internal/models"
)

const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a correlation id. A well-formed inbound
// X-Request-ID is kept so ids can span the frontend and the gateway.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}

		r.Header.Set(RequestIDHeader, id)
		w.Header().Set(RequestIDHeader, id)

		ctx := logging.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: r.Header.Get(RequestIDHeader),
	})
}
