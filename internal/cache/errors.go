package cache

import "errors"

var (
	// ErrCapacityExceeded is returned when a payload cannot fit in the
	// device's declared storage budget even after eviction.
	ErrCapacityExceeded = errors.New("device cache capacity exceeded")

	// ErrNotCached is returned when no entry exists for a content unit.
	ErrNotCached = errors.New("content not cached")

	// ErrIntegrityMismatch is returned when a stored payload no longer
	// matches its recorded hash.
	ErrIntegrityMismatch = errors.New("cached payload integrity mismatch")

	// ErrUnknownDevice is returned when the device has no registry record.
	ErrUnknownDevice = errors.New("unknown device")
)
