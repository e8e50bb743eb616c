package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekaya-inc/ekaya-projections/pkg/models"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// DataResponse wraps list payloads as {"data": [...]}.
type DataResponse struct {
	Data any `json:"data"`
}

// SaveResponse is returned after a successful save.
type SaveResponse struct {
	Success  string `json:"success"`
	Redirect string `json:"redirect"`
}

// ValidationErrorResponse carries field-level messages.
type ValidationErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

// ImportResponse is the registry import result. Bounds and Proj4 are
// omitted on failure.
type ImportResponse struct {
	Success bool           `json:"success"`
	Bounds  *models.Extent `json:"bounds,omitempty"`
	Proj4   string         `json:"proj4,omitempty"`
}
