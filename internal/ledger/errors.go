package ledger

import "errors"

// Domain errors for the ledger package.
var (
	// ErrRunIDRequired is returned when a run id is empty.
	ErrRunIDRequired = errors.New("ledger: run id is required")

	// ErrRunNotFound is returned when finishing a run that was never started.
	ErrRunNotFound = errors.New("ledger: run not found")
)
