package interviews

import "errors"

var (
	// ErrNotFound is returned when an interview does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an interview for the same source message already exists.
	ErrDuplicate = errors.New("duplicate source message")
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrMalformed is returned when a stored record fails validation.
	ErrMalformed = errors.New("malformed interview record")
)
