package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
)

// Error codes returned in the error envelope.
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// APIError is the error body returned to HTTP clients.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// MapError converts a domain error to the API error it is reported as.
// Unknown errors become INTERNAL_ERROR; their text is never exposed.
func MapError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, auth.ErrUnauthorized):
		return &APIError{Code: ErrCodeUnauthorized, Message: "authentication required", Status: http.StatusUnauthorized}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, session.ErrUserMismatch):
		return &APIError{Code: ErrCodeForbidden, Message: "access denied", Status: http.StatusForbidden}
	case errors.Is(err, session.ErrConsistencyFault):
		return &APIError{Code: ErrCodeInternalError, Message: "internal server error", Status: http.StatusInternalServerError}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: ErrCodeNotFound, Message: "project not found", Status: http.StatusNotFound}
	case errors.Is(err, session.ErrSessionNotFound):
		return &APIError{Code: ErrCodeNotFound, Message: "session not found", Status: http.StatusNotFound}
	case errors.Is(err, project.ErrInvalidInput), errors.Is(err, session.ErrInvalidInput), errors.Is(err, activity.ErrInvalidInput):
		return &APIError{Code: ErrCodeValidationFailed, Message: err.Error(), Status: http.StatusBadRequest}
	case errors.Is(err, project.ErrStoreUnavailable):
		return &APIError{Code: ErrCodeStoreUnavailable, Message: "project store unavailable, retry later", Status: http.StatusServiceUnavailable}
	default:
		return &APIError{Code: ErrCodeInternalError, Message: "internal server error", Status: http.StatusInternalServerError}
	}
}

func badRequest(message string) *APIError {
	return &APIError{Code: ErrCodeBadRequest, Message: message, Status: http.StatusBadRequest}
}

func notFound(message string) *APIError {
	return &APIError{Code: ErrCodeNotFound, Message: message, Status: http.StatusNotFound}
}

// writeError maps err and writes the envelope. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	apiErr := MapError(err)
	switch {
	case errors.Is(err, session.ErrConsistencyFault):
		logger.Error("consistency fault", "method", r.Method, "path", r.URL.Path, "error", err)
	case apiErr.Status >= http.StatusInternalServerError:
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", apiErr.Code, "error", err)
	}
	if apiErr.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, apiErr.Status, errorEnvelope{Error: apiErr})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
