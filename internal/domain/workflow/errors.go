package workflow

import "errors"

var (
	// ErrNotFound is returned when a submission, definition or template does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidDefinition is returned when a workflow definition is malformed
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrInvalidTransition is returned when no transition exists for the requested edge
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnauthorized is returned when the actor holds none of the allowed roles
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when the submission changed underneath the caller
	ErrConflict = errors.New("conflict")
)
