package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/logging"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error apperrors.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	respondJSON(w, statusCode, ErrorResponse{
		Error: apperrors.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.WithError(err).Warn("Failed to encode response")
		}
	}
}

// respondServiceError maps a categorized error onto its status code. System
// errors are logged and their details hidden from the client.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	cat := apperrors.Categorize(err)
	status := apperrors.GetHTTPStatusCode(cat)
	if apperrors.IsSystemError(cat) {
		logging.FromContext(r.Context()).WithError(err).Error("Request failed")
		respondError(w, status, cat.Code, "An internal error occurred", nil)
		return
	}
	respondError(w, status, cat.Code, cat.Message, cat.Details)
}
