package admission

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"gatekeeper/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to encode admission response", "error", err)
	}
}

func writeBlocked(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests,
		models.NewErrorResponse(models.ErrorTooManyRequests, models.MessageRateLimited, ""))
}

func writeRateLimited(w http.ResponseWriter) {
	writeJSON(w, http.StatusTooManyRequests,
		models.NewErrorResponse(models.ErrorTooManyRequests, models.MessageRateLimited, models.ErrorCodeRateLimitExceeded))
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse(models.ErrorUnauthorized, "", ""))
}

func writeSuspended(w http.ResponseWriter, reason string) {
	writeJSON(w, http.StatusForbidden, models.NewErrorResponse(models.ErrorForbidden, reason, ""))
}

func writeInternal(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(models.ErrorInternal, "", ""))
}
