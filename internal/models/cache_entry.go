package models

import (
	"time"
)

// CachePriority orders cache entries for eviction. Lower priorities are
// evicted first; critical entries are never evicted automatically.
type CachePriority int

// Priority tiers.
const (
	PriorityLow CachePriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the tier name.
func (p CachePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// ParseCachePriority maps a tier name to its priority. Unknown names map
// to PriorityMedium.
func ParseCachePriority(s string) CachePriority {
	switch s {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	}
	return PriorityMedium
}

// ContentRef identifies one content unit within a content type.
type ContentRef struct {
	ContentType string `json:"content_type"`
	ContentID   string `json:"content_id"`
}

// CacheEntry is one cached content unit scoped to a device. At most one
// entry exists per (device, content type, content id).
type CacheEntry struct {
	ID uint `gorm:"primaryKey" json:"id"`

	DeviceID    string `gorm:"size:128;uniqueIndex:idx_cache_unit;index" json:"device_id"`
	ContentType string `gorm:"size:100;uniqueIndex:idx_cache_unit" json:"content_type"`
	ContentID   string `gorm:"size:128;uniqueIndex:idx_cache_unit" json:"content_id"`

	Version string `gorm:"size:50" json:"version"`
	Hash    string `gorm:"size:64" json:"hash"` // SHA256 of the uncompressed payload

	Payload    []byte `gorm:"type:blob" json:"-"`
	Compressed bool   `gorm:"default:false" json:"compressed"`
	// Size is the uncompressed payload size in bytes; quota math always
	// uses this, not the stored size.
	Size int64 `gorm:"default:0" json:"size"`

	Priority CachePriority `gorm:"default:1;index" json:"priority"`

	LastAccessAt time.Time `gorm:"index" json:"last_access_at"`
	AccessCount  int       `gorm:"default:0" json:"access_count"`

	ServerModifiedAt time.Time  `json:"server_modified_at"`
	NeedsResync      bool       `gorm:"default:false;index" json:"needs_resync"`
	ExpiresAt        *time.Time `json:"expires_at"`

	Extensions ExtensionMap `gorm:"type:text" json:"extensions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Ref returns the content reference for this entry.
func (e *CacheEntry) Ref() ContentRef {
	return ContentRef{ContentType: e.ContentType, ContentID: e.ContentID}
}

// Expired reports whether the entry has passed its expiry at t.
func (e *CacheEntry) Expired(t time.Time) bool {
	return e.ExpiresAt != nil && t.After(*e.ExpiresAt)
}
