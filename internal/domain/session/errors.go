package session

import "errors"

var (
	// ErrSessionNotFound indicates the session doesn't exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConsistencyFault indicates a write targeted a session that vanished after it was resolved.
	ErrConsistencyFault = errors.New("session consistency fault")
	// ErrUserMismatch indicates the session is bound to a different user.
	ErrUserMismatch = errors.New("session belongs to another user")
	// ErrInvalidInput indicates invalid session input.
	ErrInvalidInput = errors.New("invalid session input")
)
