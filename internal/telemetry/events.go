package telemetry

import (
	"runtime"

	"github.com/asteroid-belt/fieldsync/pkg/version"
)

// Event names - registry
const (
	EventDeviceRegistered  = "device_registered"
	EventDeviceDeactivated = "device_deactivated"
	EventDeviceHeartbeat   = "device_heartbeat"
)

// Event names - sessions
const (
	EventSessionOpened    = "session_opened"
	EventSessionClosed    = "session_closed"
	EventSessionCancelled = "session_cancelled"
)

// Event names - cache
const (
	EventCacheHit      = "cache_hit"
	EventCacheMiss     = "cache_miss"
	EventCacheEviction = "cache_eviction"
)

// Event names - conflicts and ledger
const (
	EventConflictDetected     = "conflict_detected"
	EventConflictResolved     = "conflict_resolved"
	EventEntryRecorded        = "progress_entry_recorded"
	EventEntryPermanentlyFail = "progress_entry_permanently_failed"
)

// Version is set at compile time via ldflags.
var Version string

// baseProperties returns common properties for all events.
func baseProperties() map[string]interface{} {
	return map[string]interface{}{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"version":    Version,
		"prerelease": version.IsPrerelease(),
		"dev_build":  version.IsDevBuild(),
	}
}

// --- Registry events ---

// TrackDeviceRegistered tracks a device registration or re-registration.
func (c *posthogClient) TrackDeviceRegistered(deviceType string, deltaSync bool, storageCapacity int64) {
	props := baseProperties()
	props["device_type"] = deviceType
	props["delta_sync"] = deltaSync
	props["storage_capacity"] = storageCapacity
	c.Track(EventDeviceRegistered, props)
}

// TrackDeviceDeactivated tracks a deactivation and how many open sessions it
// cancelled.
func (c *posthogClient) TrackDeviceDeactivated(sessionsCancelled int) {
	props := baseProperties()
	props["sessions_cancelled"] = sessionsCancelled
	c.Track(EventDeviceDeactivated, props)
}

// --- Session events ---

// TrackSessionOpened tracks a new sync session.
func (c *posthogClient) TrackSessionOpened(direction string, fullResync bool, scopeSize int) {
	props := baseProperties()
	props["direction"] = direction
	props["full_resync"] = fullResync
	props["scope_size"] = scopeSize
	c.Track(EventSessionOpened, props)
}

// TrackSessionClosed tracks a session reaching a terminal state.
func (c *posthogClient) TrackSessionClosed(status string, processed, failed, conflictsPending int, bytesMoved, durationMs int64) {
	props := baseProperties()
	props["status"] = status
	props["processed_items"] = processed
	props["failed_items"] = failed
	props["conflicts_pending"] = conflictsPending
	props["bytes_moved"] = bytesMoved
	props["duration_ms"] = durationMs
	c.Track(EventSessionClosed, props)
}

// --- Cache events ---

// TrackCacheHit tracks a cache hit for hit-rate analytics.
func (c *posthogClient) TrackCacheHit(contentType string, stale bool) {
	props := baseProperties()
	props["content_type"] = contentType
	props["stale"] = stale
	c.Track(EventCacheHit, props)
}

// TrackCacheMiss tracks a cache miss.
func (c *posthogClient) TrackCacheMiss(contentType string) {
	props := baseProperties()
	props["content_type"] = contentType
	c.Track(EventCacheMiss, props)
}

// TrackCacheEviction tracks an automatic eviction pass.
func (c *posthogClient) TrackCacheEviction(entriesRemoved int, bytesFreed int64) {
	props := baseProperties()
	props["entries_removed"] = entriesRemoved
	props["bytes_freed"] = bytesFreed
	c.Track(EventCacheEviction, props)
}

// --- Conflict and ledger events ---

// TrackConflictDetected tracks a detected divergence.
func (c *posthogClient) TrackConflictDetected(conflictType, strategy string) {
	props := baseProperties()
	props["conflict_type"] = conflictType
	props["strategy"] = strategy
	c.Track(EventConflictDetected, props)
}

// TrackConflictResolved tracks a resolution, automatic or manual.
func (c *posthogClient) TrackConflictResolved(strategy, winner string, manual bool) {
	props := baseProperties()
	props["strategy"] = strategy
	props["winner"] = winner
	props["manual"] = manual
	c.Track(EventConflictResolved, props)
}

// TrackEntryRecorded tracks an offline progress entry landing in the ledger.
func (c *posthogClient) TrackEntryRecorded(deduped bool) {
	props := baseProperties()
	props["deduped"] = deduped
	c.Track(EventEntryRecorded, props)
}

// TrackEntryPermanentlyFailed tracks an entry exhausting its retry ceiling.
func (c *posthogClient) TrackEntryPermanentlyFailed(retries int) {
	props := baseProperties()
	props["retries"] = retries
	c.Track(EventEntryPermanentlyFail, props)
}

// --- noopClient implementations (no-ops) ---

func (c *noopClient) TrackDeviceRegistered(deviceType string, deltaSync bool, storageCapacity int64) {
}
func (c *noopClient) TrackDeviceDeactivated(sessionsCancelled int)                  {}
func (c *noopClient) TrackSessionOpened(direction string, fullResync bool, scopeSize int) {}
func (c *noopClient) TrackSessionClosed(status string, processed, failed, conflictsPending int, bytesMoved, durationMs int64) {
}
func (c *noopClient) TrackCacheHit(contentType string, stale bool)                  {}
func (c *noopClient) TrackCacheMiss(contentType string)                             {}
func (c *noopClient) TrackCacheEviction(entriesRemoved int, bytesFreed int64)       {}
func (c *noopClient) TrackConflictDetected(conflictType, strategy string)           {}
func (c *noopClient) TrackConflictResolved(strategy, winner string, manual bool)    {}
func (c *noopClient) TrackEntryRecorded(deduped bool)                               {}
func (c *noopClient) TrackEntryPermanentlyFailed(retries int)                       {}
