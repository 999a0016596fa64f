package models

import "time"

// NodeState is the single-row table holding per-installation state, keyed
// by the fixed ID "default".
type NodeState struct {
	ID         string `gorm:"primaryKey;size:32" json:"id"`
	TrackingID string `gorm:"size:36" json:"tracking_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (NodeState) TableName() string {
	return "node_state"
}
