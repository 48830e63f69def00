package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error kinds reported in ErrorResponse.Error.
const (
	errValidation   = "Validation Error"
	errBusinessRule = "Business Rule Error"
	errJSONParse    = "JSON Parse Error"
	errUnavailable  = "Service Unavailable"
	errInternal     = "Internal Server Error"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Timestamp   time.Time         `json:"timestamp"`
	Status      int               `json:"status"`
	Error       string            `json:"error"`
	Message     string            `json:"message"`
	Path        string            `json:"path"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind, message string, fields map[string]string) {
	writeJSON(w, status, ErrorResponse{
		Timestamp:   time.Now().UTC(),
		Status:      status,
		Error:       kind,
		Message:     message,
		Path:        r.URL.Path,
		FieldErrors: fields,
	})
}
