package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// CreateConflict records a detected divergence. Conflicts are append-only;
// there is no delete method on purpose.
func (db *DB) CreateConflict(conflict *models.Conflict) error {
	return db.Create(conflict).Error
}

// GetConflict retrieves a conflict by ID. Returns nil when not found.
func (db *DB) GetConflict(id string) (*models.Conflict, error) {
	var conflict models.Conflict
	err := db.First(&conflict, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conflict, nil
}

// AttachResolution marks a conflict resolved with the winning side and
// value. Refuses to overwrite an existing resolution.
func (db *DB) AttachResolution(id string, strategy models.ResolutionStrategy,
	winner string, value []byte, resolvedBy string) error {
	now := time.Now().UTC()
	return db.Model(&models.Conflict{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]interface{}{
			"strategy":       strategy,
			"resolved":       true,
			"winner":         winner,
			"resolved_value": value,
			"resolved_by":    resolvedBy,
			"resolved_at":    now,
		}).Error
}

// ListPendingConflicts returns unresolved conflicts, optionally scoped to a
// device, oldest first so reviewers see the longest-waiting divergences.
func (db *DB) ListPendingConflicts(deviceID string) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	q := db.Where("resolved = ?", false).Order("created_at ASC")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	err := q.Find(&conflicts).Error
	return conflicts, err
}

// CountPendingConflicts returns the number of unresolved conflicts for a
// session.
func (db *DB) CountPendingConflicts(sessionID string) (int64, error) {
	var count int64
	err := db.Model(&models.Conflict{}).
		Where("session_id = ? AND resolved = ?", sessionID, false).
		Count(&count).Error
	return count, err
}

// ListSessionConflicts returns all conflicts recorded during a session.
func (db *DB) ListSessionConflicts(sessionID string) ([]models.Conflict, error) {
	var conflicts []models.Conflict
	err := db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&conflicts).Error
	return conflicts, err
}

// FindUnitConflict returns the unresolved conflict for one content unit, or
// nil. Used to guarantee exactly one open conflict per divergent unit.
func (db *DB) FindUnitConflict(deviceID string, ref models.ContentRef) (*models.Conflict, error) {
	var conflict models.Conflict
	err := db.Where(
		"device_id = ? AND content_type = ? AND content_id = ? AND resolved = ?",
		deviceID, ref.ContentType, ref.ContentID, false).
		First(&conflict).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conflict, nil
}
