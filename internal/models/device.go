// Package models defines the core data structures for FieldSync.
package models

import (
	"time"
)

// DeviceType identifies the physical form factor of a registered device.
type DeviceType string

// Supported device types.
const (
	DeviceTablet  DeviceType = "tablet"
	DeviceKiosk   DeviceType = "kiosk"
	DevicePhone   DeviceType = "phone"
	DeviceDesktop DeviceType = "desktop"
)

// ValidDeviceTypes returns all valid device types.
func ValidDeviceTypes() []DeviceType {
	return []DeviceType{DeviceTablet, DeviceKiosk, DevicePhone, DeviceDesktop}
}

// Valid reports whether t is a known device type.
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTablet, DeviceKiosk, DevicePhone, DeviceDesktop:
		return true
	}
	return false
}

// DeviceCapabilities describes what a device declared at registration.
type DeviceCapabilities struct {
	// StorageCapacity is the offline cache budget in bytes.
	StorageCapacity int64 `json:"storage_capacity"`
	// MaxSessions caps concurrent sync sessions the device claims to handle.
	MaxSessions int `json:"max_sessions"`
	// DeltaSync reports whether the device supports incremental sync.
	DeltaSync bool `json:"delta_sync"`
}

// Device is the identity and capability record for one physical device.
// Devices are never hard-deleted, only deactivated, so that session and
// conflict history stays attributable.
type Device struct {
	ID       string     `gorm:"primaryKey;size:128" json:"id"` // stable device identifier
	TenantID string     `gorm:"size:64;index" json:"tenant_id"`
	Type     DeviceType `gorm:"size:20" json:"type"`

	// Declared capabilities
	StorageCapacity int64 `gorm:"default:0" json:"storage_capacity"`
	MaxSessions     int   `gorm:"default:1" json:"max_sessions"`
	DeltaSync       bool  `gorm:"default:false" json:"delta_sync"`

	// Trust / registration state
	Active  bool `gorm:"default:true;index" json:"active"`
	Trusted bool `gorm:"default:true" json:"trusted"`

	// Sync preferences
	AutoSync     bool `gorm:"default:true" json:"auto_sync"`
	WifiOnly     bool `gorm:"default:false" json:"wifi_only"`
	SyncInterval int  `gorm:"default:60" json:"sync_interval"` // minutes

	// Connectivity
	LastSeenAt  *time.Time `json:"last_seen_at"`
	LinkQuality string     `gorm:"size:20" json:"link_quality"` // excellent/good/poor/offline

	Extensions ExtensionMap `gorm:"type:text" json:"extensions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Device) TableName() string {
	return "devices"
}

// Capabilities returns the declared capability set.
func (d *Device) Capabilities() DeviceCapabilities {
	return DeviceCapabilities{
		StorageCapacity: d.StorageCapacity,
		MaxSessions:     d.MaxSessions,
		DeltaSync:       d.DeltaSync,
	}
}
