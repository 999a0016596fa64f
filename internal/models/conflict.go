package models

import (
	"time"
)

// ConflictType classifies a detected divergence.
type ConflictType string

// Conflict classifications.
const (
	// ConflictCreateCreate - both sides independently created the same
	// logical entity.
	ConflictCreateCreate ConflictType = "create-create"
	// ConflictUpdateUpdate - both sides modified the same unit since the
	// client's last known version.
	ConflictUpdateUpdate ConflictType = "update-update"
	// ConflictUpdateDelete - one side deleted what the other modified.
	ConflictUpdateDelete ConflictType = "update-delete"
)

// ResolutionStrategy selects how a conflict is reconciled. Configured per
// sync session, not globally.
type ResolutionStrategy string

// Resolution strategies.
const (
	StrategyServerWins      ResolutionStrategy = "server-wins"
	StrategyClientWins      ResolutionStrategy = "client-wins"
	StrategyLatestTimestamp ResolutionStrategy = "latest-timestamp"
	StrategyMerge           ResolutionStrategy = "merge"
	StrategyManualReview    ResolutionStrategy = "manual-review"
)

// Valid reports whether s is a known strategy.
func (s ResolutionStrategy) Valid() bool {
	switch s {
	case StrategyServerWins, StrategyClientWins, StrategyLatestTimestamp,
		StrategyMerge, StrategyManualReview:
		return true
	}
	return false
}

// Conflict winners.
const (
	WinnerServer = "server"
	WinnerClient = "client"
	WinnerMerged = "merged"
	WinnerManual = "manual"
)

// Conflict is one detected divergence between client and server state.
// Conflicts are never deleted; resolution is attached, providing a
// permanent audit of every divergence the system has reconciled.
type Conflict struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	SessionID string `gorm:"size:36;index" json:"session_id"`
	DeviceID  string `gorm:"size:128;index" json:"device_id"`
	TenantID  string `gorm:"size:64" json:"tenant_id"`

	ContentType string `gorm:"size:100" json:"content_type"`
	ContentID   string `gorm:"size:128" json:"content_id"`
	Field       string `gorm:"size:100" json:"field,omitempty"` // optional field-level scope

	Type ConflictType `gorm:"size:20" json:"type"`

	ServerValue     []byte    `gorm:"type:blob" json:"server_value"`
	ClientValue     []byte    `gorm:"type:blob" json:"client_value"`
	ServerTimestamp time.Time `json:"server_timestamp"`
	ClientTimestamp time.Time `json:"client_timestamp"`
	ServerVersion   string    `gorm:"size:50" json:"server_version"`
	ClientVersion   string    `gorm:"size:50" json:"client_version"`

	// Resolution
	Strategy      ResolutionStrategy `gorm:"size:20" json:"strategy"`
	Resolved      bool               `gorm:"default:false;index" json:"resolved"`
	Winner        string             `gorm:"size:20" json:"winner,omitempty"`
	ResolvedValue []byte             `gorm:"type:blob" json:"resolved_value,omitempty"`
	ResolvedBy    string             `gorm:"size:64" json:"resolved_by,omitempty"` // "auto" or reviewer ID
	ResolvedAt    *time.Time         `json:"resolved_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Conflict) TableName() string {
	return "conflicts"
}

// PendingReview reports whether the conflict still needs a human decision.
func (c *Conflict) PendingReview() bool {
	return !c.Resolved
}
