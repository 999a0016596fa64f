package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/syncer"
)

// fail maps service errors onto HTTP status codes. Unknown errors are
// internal.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrDeviceNotFound),
		errors.Is(err, cache.ErrNotCached),
		errors.Is(err, cache.ErrUnknownDevice),
		errors.Is(err, syncer.ErrSessionNotFound),
		errors.Is(err, conflict.ErrConflictNotFound),
		errors.Is(err, ledger.ErrEntryNotFound):
		status = http.StatusNotFound

	case errors.Is(err, registry.ErrDeviceInactive):
		status = http.StatusForbidden

	case errors.Is(err, syncer.ErrSessionAlreadyActive),
		errors.Is(err, syncer.ErrSessionTerminal),
		errors.Is(err, conflict.ErrAlreadyResolved):
		status = http.StatusConflict

	case errors.Is(err, cache.ErrCapacityExceeded):
		status = http.StatusRequestEntityTooLarge

	case errors.Is(err, registry.ErrInvalidDeviceType),
		errors.Is(err, registry.ErrMissingDeviceID),
		errors.Is(err, syncer.ErrInvalidDirection),
		errors.Is(err, syncer.ErrInvalidStrategy),
		errors.Is(err, ledger.ErrMissingKey),
		errors.Is(err, ledger.ErrPayloadMismatch):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
