package session

import "errors"

var (
	// ErrIncompletePair is returned when Set is called without both tokens.
	ErrIncompletePair = errors.New("access and refresh tokens must be set together")
	// ErrCancelled is returned to operations interrupted by an explicit logout or clear.
	ErrCancelled = errors.New("operation cancelled by logout")
	// ErrSuperseded is returned when the session changed underneath an operation, for
	// example a logout, a new login or a cleared 401.
	ErrSuperseded = errors.New("session replaced while the operation was in flight")
	// ErrPersist wraps failures of the durable slot. The in-memory session stays authoritative.
	ErrPersist = errors.New("token persistence failed")
	// ErrCorruptBlob is returned when a persisted blob cannot be decoded.
	ErrCorruptBlob = errors.New("persisted session blob corrupt")
)
