package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/taxdesk/taxdesk/cmd/taxapi/internal/services/iam"
)

// ErrorResponse is the JSON body of every error written by this package.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// StatusForError maps iam errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, iam.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, iam.ErrMisconfiguredRegion):
		return http.StatusConflict
	case errors.Is(err, iam.ErrInsufficientRole):
		return http.StatusForbidden
	case errors.Is(err, iam.ErrInfrastructure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthzError writes the response for an authentication or authorization
// failure. Internal details never reach the client.
func WriteAuthzError(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if errors.Is(err, iam.ErrUnknownRole) {
		WriteError(w, status, "account data error")
		return
	}
	switch status {
	case http.StatusUnauthorized:
		WriteError(w, status, "authentication required")
	case http.StatusForbidden:
		WriteError(w, status, "forbidden")
	case http.StatusConflict:
		WriteError(w, status, iam.ErrMisconfiguredRegion.Error())
	case http.StatusServiceUnavailable:
		WriteError(w, status, "authentication unavailable")
	default:
		WriteError(w, status, "authorization error")
	}
}
