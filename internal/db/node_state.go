package db

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

// GetNodeState retrieves the installation state row.
func (db *DB) GetNodeState() (*models.NodeState, error) {
	var state models.NodeState
	err := db.Where("id = ?", "default").First(&state).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &models.NodeState{ID: "default"}, nil
		}
		return nil, err
	}
	return &state, nil
}

// GetOrCreateTrackingID returns the persistent anonymous tracking ID,
// creating one on first use. On any error it falls back to a per-process
// ID.
func (db *DB) GetOrCreateTrackingID() string {
	state, err := db.GetNodeState()
	if err != nil {
		return uuid.New().String()
	}
	if state.TrackingID != "" {
		return state.TrackingID
	}

	state.TrackingID = uuid.New().String()
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tracking_id", "updated_at"}),
	}).Create(state).Error
	if err != nil {
		return state.TrackingID
	}
	return state.TrackingID
}
