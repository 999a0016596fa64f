package syncer

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for an ID.
	ErrSessionNotFound = errors.New("sync session not found")

	// ErrSessionAlreadyActive is returned when a device already has a
	// non-terminal session. At most one session runs per device.
	ErrSessionAlreadyActive = errors.New("device already has an active sync session")

	// ErrSessionTerminal is returned when an operation targets a session
	// that has already reached a final state.
	ErrSessionTerminal = errors.New("sync session is already terminal")

	// ErrInvalidDirection is returned for an unknown sync direction.
	ErrInvalidDirection = errors.New("invalid sync direction")

	// ErrInvalidStrategy is returned for an unknown resolution strategy.
	ErrInvalidStrategy = errors.New("invalid resolution strategy")
)
