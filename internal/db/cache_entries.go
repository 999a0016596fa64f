package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// UpsertCacheEntry creates or replaces the entry for one content unit. The
// (device, content type, content id) uniqueness invariant is enforced by
// idx_cache_unit.
func (db *DB) UpsertCacheEntry(entry *models.CacheEntry) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "device_id"}, {Name: "content_type"}, {Name: "content_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"version", "hash", "payload", "compressed", "size",
			"priority", "last_access_at", "access_count",
			"server_modified_at", "needs_resync", "expires_at",
			"extensions", "updated_at",
		}),
	}).Create(entry).Error
}

// GetCacheEntry retrieves the entry for one content unit. Returns nil when
// not cached.
func (db *DB) GetCacheEntry(deviceID string, ref models.ContentRef) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	err := db.First(&entry,
		"device_id = ? AND content_type = ? AND content_id = ?",
		deviceID, ref.ContentType, ref.ContentID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// TouchCacheEntry records an access for recency-based eviction ranking.
func (db *DB) TouchCacheEntry(id uint, at time.Time) error {
	return db.Model(&models.CacheEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_access_at": at,
			"access_count":   gorm.Expr("access_count + 1"),
		}).Error
}

// EvictionCandidates returns non-critical entries for a device ranked
// lowest priority first, least recently used first.
func (db *DB) EvictionCandidates(deviceID string) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	err := db.Where("device_id = ? AND priority < ?", deviceID, models.PriorityCritical).
		Order("priority ASC, last_access_at ASC").
		Find(&entries).Error
	return entries, err
}

// DeleteCacheEntry removes one entry by primary key.
func (db *DB) DeleteCacheEntry(id uint) error {
	return db.Unscoped().Delete(&models.CacheEntry{}, "id = ?", id).Error
}

// DeleteCacheUnit removes the entry for one content unit, if present. Used
// when content is retired server-side.
func (db *DB) DeleteCacheUnit(deviceID string, ref models.ContentRef) error {
	return db.Unscoped().Delete(&models.CacheEntry{},
		"device_id = ? AND content_type = ? AND content_id = ?",
		deviceID, ref.ContentType, ref.ContentID).Error
}

// SetNeedsResync flips the resync flag for one content unit.
func (db *DB) SetNeedsResync(deviceID string, ref models.ContentRef, needed bool) error {
	return db.Model(&models.CacheEntry{}).
		Where("device_id = ? AND content_type = ? AND content_id = ?",
			deviceID, ref.ContentType, ref.ContentID).
		Update("needs_resync", needed).Error
}

// ListCacheEntries returns all entries for a device, optionally filtered by
// content type.
func (db *DB) ListCacheEntries(deviceID, contentType string) ([]models.CacheEntry, error) {
	var entries []models.CacheEntry
	q := db.Where("device_id = ?", deviceID)
	if contentType != "" {
		q = q.Where("content_type = ?", contentType)
	}
	err := q.Order("content_type, content_id").Find(&entries).Error
	return entries, err
}
