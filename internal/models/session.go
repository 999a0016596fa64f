package models

import (
	"strings"
	"time"
)

// SessionStatus is the state machine position of a sync session.
// pending is the only initial state; completed, failed, conflict and
// cancelled are terminal. A terminal session is never resumed - a new
// session is opened instead.
type SessionStatus string

// Session states.
const (
	SessionPending    SessionStatus = "pending"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionConflict   SessionStatus = "conflict"
	SessionCancelled  SessionStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionConflict, SessionCancelled:
		return true
	}
	return false
}

// ActiveSessionStates lists the non-terminal states, in the order used by
// the partial unique index that enforces one active session per device.
func ActiveSessionStates() []SessionStatus {
	return []SessionStatus{SessionPending, SessionInProgress}
}

// SyncDirection selects which transfer paths a session runs.
type SyncDirection string

// Sync directions.
const (
	DirectionUpload        SyncDirection = "upload"
	DirectionDownload      SyncDirection = "download"
	DirectionBidirectional SyncDirection = "bidirectional"
)

// Valid reports whether d is a known direction.
func (d SyncDirection) Valid() bool {
	switch d {
	case DirectionUpload, DirectionDownload, DirectionBidirectional:
		return true
	}
	return false
}

// Downloads reports whether the direction includes the download path.
func (d SyncDirection) Downloads() bool {
	return d == DirectionDownload || d == DirectionBidirectional
}

// Uploads reports whether the direction includes the upload path.
func (d SyncDirection) Uploads() bool {
	return d == DirectionUpload || d == DirectionBidirectional
}

// SyncSession is one synchronization attempt for a device. Mutated only by
// the orchestrator; immutable once terminal.
type SyncSession struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	DeviceID string `gorm:"size:128;index" json:"device_id"`
	TenantID string `gorm:"size:64" json:"tenant_id"`
	UserID   string `gorm:"size:64" json:"user_id"` // initiating user, optional

	Direction    SyncDirection `gorm:"size:20" json:"direction"`
	ContentTypes string        `gorm:"size:500" json:"content_types"` // comma-separated scope, empty = all
	Since        *time.Time    `json:"since"`
	FullResync   bool          `gorm:"default:false" json:"full_resync"`

	// Conflict policy for this session
	Strategy ResolutionStrategy `gorm:"size:20" json:"strategy"`

	Status SessionStatus `gorm:"size:20;index" json:"status"`

	// Soft deadline window bounding the attempt
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Per-item counters, updated after every item so a crash mid-session
	// leaves an accurate partial record.
	TotalItems      int   `gorm:"default:0" json:"total_items"`
	ProcessedItems  int   `gorm:"default:0" json:"processed_items"`
	SuccessfulItems int   `gorm:"default:0" json:"successful_items"`
	FailedItems     int   `gorm:"default:0" json:"failed_items"`
	SkippedItems    int   `gorm:"default:0" json:"skipped_items"`
	BytesMoved      int64 `gorm:"default:0" json:"bytes_moved"`

	ConflictsDetected int `gorm:"default:0" json:"conflicts_detected"`
	ConflictsResolved int `gorm:"default:0" json:"conflicts_resolved"`
	ConflictsPending  int `gorm:"default:0" json:"conflicts_pending"`

	ErrorMessage string `gorm:"size:1000" json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (SyncSession) TableName() string {
	return "sync_sessions"
}

// Scope returns the requested content types, or nil for an unbounded scope.
func (s *SyncSession) Scope() []string {
	if strings.TrimSpace(s.ContentTypes) == "" {
		return nil
	}
	parts := strings.Split(s.ContentTypes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InScope reports whether contentType falls inside the session scope.
func (s *SyncSession) InScope(contentType string) bool {
	scope := s.Scope()
	if len(scope) == 0 {
		return true
	}
	for _, ct := range scope {
		if ct == contentType {
			return true
		}
	}
	return false
}

// Expired reports whether the session window has passed at t.
func (s *SyncSession) Expired(t time.Time) bool {
	return !s.WindowEnd.IsZero() && t.After(s.WindowEnd)
}
