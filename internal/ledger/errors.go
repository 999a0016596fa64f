package ledger

import "errors"

var (
	// ErrEntryNotFound is returned when no ledger entry exists for a key.
	ErrEntryNotFound = errors.New("progress entry not found")

	// ErrPayloadMismatch is returned when a stored payload no longer
	// matches its recorded hash.
	ErrPayloadMismatch = errors.New("payload hash mismatch")

	// ErrMissingKey is returned when a record call lacks the
	// client-generated idempotency key.
	ErrMissingKey = errors.New("idempotency key is required")

	// ErrTransientNetwork marks a retryable failure from the
	// business-effect applier. Wrap it so the submit path can tell
	// transient faults from permanent rejections.
	ErrTransientNetwork = errors.New("transient network failure")
)
