package db

import (
	"time"

	"gorm.io/gorm"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// CreateSession inserts a new sync session. The partial unique index on
// active sessions makes this fail if the device already has a non-terminal
// session.
func (db *DB) CreateSession(session *models.SyncSession) error {
	return db.Create(session).Error
}

// GetSession retrieves a session by ID. Returns nil when not found.
func (db *DB) GetSession(id string) (*models.SyncSession, error) {
	var session models.SyncSession
	err := db.First(&session, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// ActiveSession returns the device's non-terminal session, or nil.
func (db *DB) ActiveSession(deviceID string) (*models.SyncSession, error) {
	var session models.SyncSession
	err := db.Where("device_id = ? AND status IN ?", deviceID,
		[]models.SessionStatus{models.SessionPending, models.SessionInProgress}).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// UpdateSessionStatus transitions a session, recording start/completion
// timestamps. The WHERE clause refuses to move a session out of a terminal
// state.
func (db *DB) UpdateSessionStatus(id string, status models.SessionStatus, errMsg string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status": status,
	}
	if status == models.SessionInProgress {
		updates["started_at"] = now
	}
	if status.Terminal() {
		updates["completed_at"] = now
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	return db.Model(&models.SyncSession{}).
		Where("id = ? AND status IN ?", id,
			[]models.SessionStatus{models.SessionPending, models.SessionInProgress}).
		Updates(updates).Error
}

// SessionCounters is the per-item delta applied after each processed item.
type SessionCounters struct {
	Processed  int
	Successful int
	Failed     int
	Skipped    int
	Bytes      int64
	Detected   int
	Resolved   int
	Pending    int
}

// BumpSessionCounters increments session counters in place. Called after
// every item, never batched, so a crash mid-session leaves an accurate
// partial record.
func (db *DB) BumpSessionCounters(id string, c SessionCounters) error {
	updates := map[string]interface{}{}
	if c.Processed != 0 {
		updates["processed_items"] = gorm.Expr("processed_items + ?", c.Processed)
	}
	if c.Successful != 0 {
		updates["successful_items"] = gorm.Expr("successful_items + ?", c.Successful)
	}
	if c.Failed != 0 {
		updates["failed_items"] = gorm.Expr("failed_items + ?", c.Failed)
	}
	if c.Skipped != 0 {
		updates["skipped_items"] = gorm.Expr("skipped_items + ?", c.Skipped)
	}
	if c.Bytes != 0 {
		updates["bytes_moved"] = gorm.Expr("bytes_moved + ?", c.Bytes)
	}
	if c.Detected != 0 {
		updates["conflicts_detected"] = gorm.Expr("conflicts_detected + ?", c.Detected)
	}
	if c.Resolved != 0 {
		updates["conflicts_resolved"] = gorm.Expr("conflicts_resolved + ?", c.Resolved)
	}
	if c.Pending != 0 {
		updates["conflicts_pending"] = gorm.Expr("conflicts_pending + ?", c.Pending)
	}
	if len(updates) == 0 {
		return nil
	}
	return db.Model(&models.SyncSession{}).Where("id = ?", id).Updates(updates).Error
}

// SetSessionTotal records the item count discovered at the start of a run.
func (db *DB) SetSessionTotal(id string, total int) error {
	return db.Model(&models.SyncSession{}).Where("id = ?", id).
		Update("total_items", total).Error
}

// AddSessionTotal grows the item count when a second path contributes work
// to the same run, as the upload leg of a bidirectional session does.
func (db *DB) AddSessionTotal(id string, n int) error {
	if n == 0 {
		return nil
	}
	return db.Model(&models.SyncSession{}).Where("id = ?", id).
		Update("total_items", gorm.Expr("total_items + ?", n)).Error
}

// CancelSessionsForDevice cancels every non-terminal session for a device
// and returns how many it cancelled. Used when a device is deactivated.
func (db *DB) CancelSessionsForDevice(deviceID string) (int64, error) {
	now := time.Now().UTC()
	res := db.Model(&models.SyncSession{}).
		Where("device_id = ? AND status IN ?", deviceID,
			[]models.SessionStatus{models.SessionPending, models.SessionInProgress}).
		Updates(map[string]interface{}{
			"status":       models.SessionCancelled,
			"completed_at": now,
		})
	return res.RowsAffected, res.Error
}

// ListSessions returns sessions for a device, newest first.
func (db *DB) ListSessions(deviceID string, limit int) ([]models.SyncSession, error) {
	var sessions []models.SyncSession
	q := db.Order("created_at DESC")
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&sessions).Error
	return sessions, err
}
