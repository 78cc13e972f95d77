package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Loader error taxonomy. Every failure delivered by a loader wraps exactly one of these,
// so callers match with errors.Is regardless of the detail appended to the message.
var (
	ErrConnectivity     = errors.New("connectivity failure")        // transport could not complete the request
	ErrInvalidData      = errors.New("invalid data")                // response did not decode into the expected shape
	ErrInvalidURL       = errors.New("invalid url")                 // request could not be built
	ErrNotAuthorized    = errors.New("not authorized")              // token unavailable or rejected by the backend
	ErrCacheReadFailed  = errors.New("cache read failed")           // local store failed on read
	ErrCacheWriteFailed = errors.New("cache write failed")          // local store failed on write
	ErrStoreUnavailable = errors.New("storage backend unavailable") // adapter has no usable handle
)

// ErrorCode represents a specific error condition on the HTTP surface.
type ErrorCode string

const (
	ErrCodeBadRequest            ErrorCode = "BadRequest"            // HTTP 400, e.g. non-numeric user id
	ErrCodeNotFound              ErrorCode = "NotFound"              // HTTP 404, resource absent locally and remotely
	ErrCodeInvalidAPIKey         ErrorCode = "InvalidAPIKey"         // HTTP 401
	ErrCodeUpstreamUnavailable   ErrorCode = "UpstreamUnavailable"   // HTTP 502, ErrConnectivity
	ErrCodeUpstreamInvalidData   ErrorCode = "UpstreamInvalidData"   // HTTP 502, ErrInvalidData
	ErrCodeUpstreamNotAuthorized ErrorCode = "UpstreamNotAuthorized" // HTTP 502, ErrNotAuthorized
	ErrCodeInternal              ErrorCode = "InternalServerError"   // HTTP 500
)

// ErrorResponse is the standard error format returned to HTTP clients.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}

// ErrorResponseFor maps a loader failure onto the HTTP error shape and status code.
func ErrorResponseFor(err error) (ErrorResponse, int) {
	switch {
	case errors.Is(err, ErrConnectivity):
		return NewErrorResponse(ErrCodeUpstreamUnavailable, "Remote backend is unreachable", ""), http.StatusBadGateway
	case errors.Is(err, ErrInvalidData):
		return NewErrorResponse(ErrCodeUpstreamInvalidData, "Remote backend returned unexpected data", ""), http.StatusBadGateway
	case errors.Is(err, ErrNotAuthorized):
		return NewErrorResponse(ErrCodeUpstreamNotAuthorized, "Remote backend rejected the credentials", ""), http.StatusBadGateway
	default:
		return NewErrorResponse(ErrCodeInternal, "An unexpected error occurred.", "Internal server error."), http.StatusInternalServerError
	}
}
