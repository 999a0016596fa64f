// Package cache implements the per-device offline content store. Each
// device declares a storage budget at registration; entries are versioned,
// integrity-hashed blobs evicted by priority and recency when the budget is
// exceeded. Quota mutation is serialized per device because at most one
// sync session runs per device at a time.
package cache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/hash"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

// Service provides the offline content cache for all devices.
type Service struct {
	db        *db.DB
	telemetry telemetry.Client

	// compressThreshold is the payload size in bytes above which payloads
	// are stored gzip-compressed. Zero disables compression.
	compressThreshold int
}

// New creates a new cache service.
func New(database *db.DB, tc telemetry.Client, compressThreshold int) *Service {
	return &Service{
		db:                database,
		telemetry:         tc,
		compressThreshold: compressThreshold,
	}
}

// PutInput carries the server-side facts stored alongside a payload.
type PutInput struct {
	Version          string
	Priority         models.CachePriority
	ServerModifiedAt time.Time
	ExpiresAt        *time.Time
	Extensions       models.ExtensionMap
}

// Put caches a payload for one content unit. Eviction runs first when the
// payload would overflow the device quota; if the freed space is still
// insufficient the write is rejected with ErrCapacityExceeded and the cache
// is left consistent (evicted entries stay evicted - they were the lowest
// value entries regardless).
func (s *Service) Put(deviceID string, ref models.ContentRef, payload []byte, in PutInput) error {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}
	if device == nil {
		return ErrUnknownDevice
	}

	size := int64(len(payload))
	if device.StorageCapacity > 0 && size > device.StorageCapacity {
		return fmt.Errorf("%w: payload %d bytes, capacity %d", ErrCapacityExceeded, size, device.StorageCapacity)
	}

	if device.StorageCapacity > 0 {
		if err := s.ensureFree(deviceID, ref, device.StorageCapacity, size); err != nil {
			return err
		}
	}

	stored := payload
	compressed := false
	if s.compressThreshold > 0 && len(payload) > s.compressThreshold {
		if gz, err := gzipBytes(payload); err == nil && len(gz) < len(payload) {
			stored = gz
			compressed = true
		}
	}

	now := time.Now().UTC()
	entry := &models.CacheEntry{
		DeviceID:         deviceID,
		ContentType:      ref.ContentType,
		ContentID:        ref.ContentID,
		Version:          in.Version,
		Hash:             hash.SHA256(payload),
		Payload:          stored,
		Compressed:       compressed,
		Size:             size,
		Priority:         in.Priority,
		LastAccessAt:     now,
		ServerModifiedAt: in.ServerModifiedAt,
		NeedsResync:      false,
		ExpiresAt:        in.ExpiresAt,
		Extensions:       in.Extensions,
	}
	if err := s.db.UpsertCacheEntry(entry); err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// ensureFree evicts low-value entries until size bytes fit within capacity.
// The entry being replaced does not count against the budget. Critical
// entries are never evicted automatically.
func (s *Service) ensureFree(deviceID string, replacing models.ContentRef, capacity, size int64) error {
	used, err := s.db.CachedBytes(deviceID)
	if err != nil {
		return fmt.Errorf("cached bytes: %w", err)
	}

	if existing, err := s.db.GetCacheEntry(deviceID, replacing); err != nil {
		return fmt.Errorf("lookup existing entry: %w", err)
	} else if existing != nil {
		used -= existing.Size
	}

	need := used + size - capacity
	if need <= 0 {
		return nil
	}

	candidates, err := s.db.EvictionCandidates(deviceID)
	if err != nil {
		return fmt.Errorf("eviction candidates: %w", err)
	}

	var freed int64
	removed := 0
	for _, c := range candidates {
		if freed >= need {
			break
		}
		if c.DeviceID == deviceID && c.ContentType == replacing.ContentType && c.ContentID == replacing.ContentID {
			continue
		}
		if err := s.db.DeleteCacheEntry(c.ID); err != nil {
			return fmt.Errorf("evict entry: %w", err)
		}
		freed += c.Size
		removed++
	}

	if removed > 0 {
		s.telemetry.TrackCacheEviction(removed, freed)
	}
	if freed < need {
		return fmt.Errorf("%w: need %d more bytes after evicting %d", ErrCapacityExceeded, need-freed, freed)
	}
	return nil
}

// Get returns the cached payload for a content unit plus a stale flag. The
// caller supplies the server's current hash when it knows it; a mismatch or
// a raised needs-resync flag marks the entry stale. The stored payload is
// verified against its own hash before being returned.
func (s *Service) Get(deviceID string, ref models.ContentRef, serverHash string) ([]byte, bool, error) {
	entry, err := s.db.GetCacheEntry(deviceID, ref)
	if err != nil {
		return nil, false, fmt.Errorf("lookup cache entry: %w", err)
	}
	if entry == nil || entry.Expired(time.Now().UTC()) {
		s.telemetry.TrackCacheMiss(ref.ContentType)
		return nil, false, ErrNotCached
	}

	payload := entry.Payload
	if entry.Compressed {
		payload, err = gunzipBytes(payload)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrIntegrityMismatch, err)
		}
	}
	if hash.SHA256(payload) != entry.Hash {
		return nil, false, ErrIntegrityMismatch
	}

	stale := entry.NeedsResync || (serverHash != "" && serverHash != entry.Hash)

	if err := s.db.TouchCacheEntry(entry.ID, time.Now().UTC()); err != nil {
		return nil, false, fmt.Errorf("touch cache entry: %w", err)
	}

	s.telemetry.TrackCacheHit(ref.ContentType, stale)
	return payload, stale, nil
}

// Entry returns the cache metadata for one content unit without reading the
// payload or touching access time. Returns nil when not cached.
func (s *Service) Entry(deviceID string, ref models.ContentRef) (*models.CacheEntry, error) {
	return s.db.GetCacheEntry(deviceID, ref)
}

// MarkSyncRequired flips the resync flag when the server reports the
// content changed. The orchestrator uses the flag to decide what to
// re-fetch, making sync incremental by default.
func (s *Service) MarkSyncRequired(deviceID string, ref models.ContentRef) error {
	return s.db.SetNeedsResync(deviceID, ref, true)
}

// Invalidate removes one entry explicitly. This is the only removal path
// for critical entries, used when content is retired server-side.
func (s *Service) Invalidate(deviceID string, ref models.ContentRef) error {
	return s.db.DeleteCacheUnit(deviceID, ref)
}

// Usage returns the device's used and declared cache bytes.
func (s *Service) Usage(deviceID string) (used, capacity int64, err error) {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return 0, 0, err
	}
	if device == nil {
		return 0, 0, ErrUnknownDevice
	}
	used, err = s.db.CachedBytes(deviceID)
	if err != nil {
		return 0, 0, err
	}
	return used, device.StorageCapacity, nil
}

// List returns the cache manifest for a device.
func (s *Service) List(deviceID, contentType string) ([]models.CacheEntry, error) {
	return s.db.ListCacheEntries(deviceID, contentType)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
