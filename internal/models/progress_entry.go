package models

import (
	"time"
)

// EntryStatus is the sync lifecycle position of a ledger entry.
type EntryStatus string

// Ledger entry states.
const (
	EntryUnsynced        EntryStatus = "unsynced"
	EntrySubmitted       EntryStatus = "submitted"
	EntryApplied         EntryStatus = "applied"
	EntryRejected        EntryStatus = "rejected"
	EntryConflictPending EntryStatus = "conflict-pending"
	EntryFailed          EntryStatus = "permanently-failed"
)

// ProgressRefType is the content type under which upload divergences are
// recorded as conflicts; the content ID is the entry's idempotency key, so
// a conflict and the ledger entry behind it are directly joinable.
const ProgressRefType = "progress"

// Terminal reports whether the entry needs no further sync attempts.
func (s EntryStatus) Terminal() bool {
	switch s {
	case EntryApplied, EntryRejected, EntryFailed:
		return true
	}
	return false
}

// ProgressEntry is one unit of offline user activity, recorded on-device the
// instant the action occurs. The client generates the idempotency key, so a
// replayed action dedupes naturally. The originating device never mutates an
// entry after creation; only the sync pipeline does.
type ProgressEntry struct {
	// ID is the client-generated idempotency key, globally unique.
	ID       string `gorm:"primaryKey;size:64" json:"id"`
	DeviceID string `gorm:"size:128;index" json:"device_id"`
	TenantID string `gorm:"size:64" json:"tenant_id"`
	UserID   string `gorm:"size:64;index" json:"user_id"`

	// Payload is opaque to the sync core; the business-effect applier
	// interprets it.
	Payload     []byte `gorm:"type:blob" json:"payload"`
	PayloadHash string `gorm:"size:64" json:"payload_hash"`

	// RecordedAt is the on-device wall-clock time of the action, which may
	// be long before any network was available.
	RecordedAt time.Time `json:"recorded_at"`

	Status     EntryStatus `gorm:"size:20;index" json:"status"`
	RetryCount int         `gorm:"default:0" json:"retry_count"`
	LastError  string      `gorm:"size:500" json:"last_error,omitempty"`
	AppliedAt  *time.Time  `json:"applied_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ProgressEntry) TableName() string {
	return "progress_entries"
}

// Pending reports whether the entry is still waiting to be applied.
func (e *ProgressEntry) Pending() bool {
	return e.Status == EntryUnsynced || e.Status == EntryConflictPending
}
