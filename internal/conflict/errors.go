package conflict

import "errors"

var (
	// ErrConflictNotFound is returned when no conflict exists for an ID.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrAlreadyResolved is returned when attaching a resolution to a
	// conflict that already has one.
	ErrAlreadyResolved = errors.New("conflict already resolved")
)
