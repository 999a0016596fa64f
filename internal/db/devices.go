package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// UpsertDevice creates or updates a device keyed by its stable identifier.
// Re-registration updates capability fields and refreshes last-seen, never
// creating a duplicate.
func (db *DB) UpsertDevice(device *models.Device) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tenant_id", "type",
			"storage_capacity", "max_sessions", "delta_sync",
			"auto_sync", "wifi_only", "sync_interval",
			"last_seen_at", "link_quality", "extensions",
			"updated_at",
		}),
	}).Create(device).Error
}

// GetDevice retrieves a device by ID. Returns nil when not found.
func (db *DB) GetDevice(id string) (*models.Device, error) {
	var device models.Device
	err := db.First(&device, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

// TouchDevice refreshes last-seen and connectivity quality.
func (db *DB) TouchDevice(id string, seenAt time.Time, linkQuality string) error {
	updates := map[string]interface{}{
		"last_seen_at": seenAt,
	}
	if linkQuality != "" {
		updates["link_quality"] = linkQuality
	}
	return db.Model(&models.Device{}).Where("id = ?", id).Updates(updates).Error
}

// DeactivateDevice marks a device inactive and untrusted. The device row is
// kept for audit continuity; there is no deletion path.
func (db *DB) DeactivateDevice(id string) error {
	return db.Model(&models.Device{}).Where("id = ?", id).Updates(map[string]interface{}{
		"active":  false,
		"trusted": false,
	}).Error
}

// ListDevices returns all devices, most recently seen first.
func (db *DB) ListDevices(activeOnly bool) ([]models.Device, error) {
	var devices []models.Device
	q := db.Order("last_seen_at DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Find(&devices).Error
	return devices, err
}

// CachedBytes returns the total uncompressed bytes currently cached for a
// device. This is the left side of the capacity invariant.
func (db *DB) CachedBytes(deviceID string) (int64, error) {
	var total *int64
	err := db.Model(&models.CacheEntry{}).
		Where("device_id = ?", deviceID).
		Select("SUM(size)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}
