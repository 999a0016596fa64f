package registry

import "errors"

var (
	// ErrDeviceNotFound is returned when no device exists for an ID.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceInactive is returned when an operation requires an active device.
	ErrDeviceInactive = errors.New("device is deactivated")

	// ErrInvalidDeviceType is returned for unknown device types.
	ErrInvalidDeviceType = errors.New("invalid device type")

	// ErrMissingDeviceID is returned when registration lacks a stable identifier.
	ErrMissingDeviceID = errors.New("device id is required")
)
