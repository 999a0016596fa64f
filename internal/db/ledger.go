package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// InsertProgressEntry appends a ledger entry. A replay of the same
// idempotency key is a no-op: the original row wins and no error surfaces.
func (db *DB) InsertProgressEntry(entry *models.ProgressEntry) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(entry).Error
}

// GetProgressEntry retrieves a ledger entry by idempotency key. Returns nil
// when not found.
func (db *DB) GetProgressEntry(id string) (*models.ProgressEntry, error) {
	var entry models.ProgressEntry
	err := db.First(&entry, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// PendingProgressEntries returns entries still awaiting application for a
// device, in on-device recording order.
func (db *DB) PendingProgressEntries(deviceID string) ([]models.ProgressEntry, error) {
	var entries []models.ProgressEntry
	err := db.Where("device_id = ? AND status IN ?", deviceID,
		[]models.EntryStatus{models.EntryUnsynced, models.EntryConflictPending}).
		Order("recorded_at ASC").
		Find(&entries).Error
	return entries, err
}

// UpdateEntryStatus transitions a ledger entry.
func (db *DB) UpdateEntryStatus(id string, status models.EntryStatus, lastError string) error {
	updates := map[string]interface{}{
		"status": status,
	}
	if status == models.EntryApplied {
		updates["applied_at"] = time.Now().UTC()
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return db.Model(&models.ProgressEntry{}).Where("id = ?", id).Updates(updates).Error
}

// BumpEntryRetry increments the persisted retry counter so retry state
// survives process restarts.
func (db *DB) BumpEntryRetry(id string, lastError string) (int, error) {
	err := db.Model(&models.ProgressEntry{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastError,
		}).Error
	if err != nil {
		return 0, err
	}
	entry, err := db.GetProgressEntry(id)
	if err != nil || entry == nil {
		return 0, err
	}
	return entry.RetryCount, nil
}

// ListFailedEntries returns permanently-failed entries for operator
// attention, optionally scoped to a device.
func (db *DB) ListFailedEntries(deviceID string) ([]models.ProgressEntry, error) {
	var entries []models.ProgressEntry
	q := db.Where("status = ?", models.EntryFailed).Order("recorded_at ASC")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	err := q.Find(&entries).Error
	return entries, err
}
