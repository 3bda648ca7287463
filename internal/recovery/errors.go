package recovery

import "errors"

var (
	// ErrCleanupTooRecent rejects cleanup ages below the configured floor.
	ErrCleanupTooRecent = errors.New("cleanup age below floor")
	// ErrNotRetryable is returned when a forced retry targets an interview that is not awaiting retry.
	ErrNotRetryable = errors.New("interview is not retryable")
	// ErrConflict is returned when a forced retry lost a race with another actor.
	ErrConflict = errors.New("interview changed concurrently")
)
