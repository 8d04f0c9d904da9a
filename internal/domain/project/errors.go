package project

import (
	"errors"

	"github.com/dungeonmind/coordinator/internal/auth"
)

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvalidInput indicates invalid project input.
	ErrInvalidInput = errors.New("invalid project input")
	// ErrStoreUnavailable indicates the document store failed; callers may retry.
	ErrStoreUnavailable = errors.New("project store unavailable")

	// ErrUnauthorized indicates the caller has no identity.
	ErrUnauthorized = auth.ErrUnauthorized
	// ErrForbidden indicates the caller does not own the project.
	ErrForbidden = auth.ErrForbidden
)
