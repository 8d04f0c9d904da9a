package mcp

import (
	"errors"
	"fmt"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
)

// APIError represents an MCP tool error.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	if e.RecoveryHint != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.RecoveryHint)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, auth.ErrUnauthorized):
		return &APIError{Code: "UNAUTHORIZED", Message: "authentication required", RecoveryHint: "Send a bearer token"}
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, session.ErrUserMismatch):
		return &APIError{Code: "FORBIDDEN", Message: "access denied"}
	case errors.Is(err, session.ErrConsistencyFault):
		return &APIError{Code: "INTERNAL_ERROR", Message: "session disappeared during the operation", RecoveryHint: "Retry without session_id"}
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: "project not found", RecoveryHint: "Call list_projects for valid IDs"}
	case errors.Is(err, project.ErrInvalidInput), errors.Is(err, session.ErrInvalidInput), errors.Is(err, activity.ErrInvalidInput):
		return &APIError{Code: "VALIDATION_FAILED", Message: err.Error()}
	case errors.Is(err, project.ErrStoreUnavailable):
		return &APIError{Code: "STORE_UNAVAILABLE", Message: "project store unavailable", RecoveryHint: "Retry shortly"}
	default:
		return &APIError{Code: "INTERNAL_ERROR", Message: "internal error"}
	}
}
