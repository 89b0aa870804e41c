package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	pkgerrors "mindmap/pkg/errors"
)

// MaxBodyBytes bounds request bodies on the document endpoints
const MaxBodyBytes = 1 << 20

// APIResponse is the success envelope of the document REST surface
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Count   *int        `json:"count,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// RespondJSON sends a success envelope
func RespondJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Message: message,
		Data:    data,
	})
}

// RespondList sends a success envelope carrying a count
func RespondList(w http.ResponseWriter, message string, count int, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Count:   &count,
		Data:    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ParseJSONBody decodes a size-limited JSON body into v. An empty body
// leaves v untouched.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return pkgerrors.NewValidationError("Invalid request body").WithCause(err)
	}
	return nil
}
