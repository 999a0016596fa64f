// Package registry maintains the identity and capability record for every
// physical device. Devices are long-lived identities: they are created on
// first registration, refreshed on every heartbeat, and deactivated rather
// than deleted so session and conflict history stays attributable.
package registry

import (
	"fmt"
	"strings"
	"time"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

// Service provides device registry operations.
type Service struct {
	db        *db.DB
	telemetry telemetry.Client
}

// New creates a new registry service.
func New(database *db.DB, tc telemetry.Client) *Service {
	return &Service{db: database, telemetry: tc}
}

// RegisterInput carries the fields a device declares at registration.
type RegisterInput struct {
	DeviceID     string
	TenantID     string
	Type         models.DeviceType
	Capabilities models.DeviceCapabilities

	// Sync preferences; zero values fall back to defaults on first
	// registration and are preserved on re-registration.
	AutoSync     *bool
	WifiOnly     *bool
	SyncInterval int // minutes

	Extensions models.ExtensionMap
}

// Register performs an idempotent upsert keyed by the stable device ID.
// Re-registration updates capability fields and refreshes last-seen; it
// never creates a duplicate and never re-activates a deactivated device.
func (s *Service) Register(in RegisterInput) (*models.Device, error) {
	if strings.TrimSpace(in.DeviceID) == "" {
		return nil, ErrMissingDeviceID
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceType, in.Type)
	}

	existing, err := s.db.GetDevice(in.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	now := time.Now().UTC()
	device := &models.Device{
		ID:              in.DeviceID,
		TenantID:        in.TenantID,
		Type:            in.Type,
		StorageCapacity: in.Capabilities.StorageCapacity,
		MaxSessions:     in.Capabilities.MaxSessions,
		DeltaSync:       in.Capabilities.DeltaSync,
		Active:          true,
		Trusted:         true,
		AutoSync:        true,
		SyncInterval:    60,
		LastSeenAt:      &now,
		Extensions:      in.Extensions,
	}
	if device.MaxSessions <= 0 {
		device.MaxSessions = 1
	}
	if existing != nil {
		device.AutoSync = existing.AutoSync
		device.WifiOnly = existing.WifiOnly
		device.SyncInterval = existing.SyncInterval
	}
	if in.AutoSync != nil {
		device.AutoSync = *in.AutoSync
	}
	if in.WifiOnly != nil {
		device.WifiOnly = *in.WifiOnly
	}
	if in.SyncInterval > 0 {
		device.SyncInterval = in.SyncInterval
	}

	if err := s.db.UpsertDevice(device); err != nil {
		return nil, fmt.Errorf("upsert device: %w", err)
	}

	// The upsert intentionally leaves active/trusted untouched for an
	// existing row; read back the authoritative state.
	registered, err := s.db.GetDevice(in.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("reload device: %w", err)
	}

	s.telemetry.TrackDeviceRegistered(string(registered.Type),
		registered.DeltaSync, registered.StorageCapacity)

	return registered, nil
}

// Heartbeat updates last-seen and connectivity quality. It fails silently
// (no-op) when the device is unknown or deactivated.
func (s *Service) Heartbeat(deviceID, linkQuality string) error {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}
	if device == nil || !device.Active {
		return nil
	}
	return s.db.TouchDevice(deviceID, time.Now().UTC(), linkQuality)
}

// Deactivate marks a device untrusted and inactive and cancels all of its
// open sessions. There is no deletion path.
func (s *Service) Deactivate(deviceID string) error {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return fmt.Errorf("lookup device: %w", err)
	}
	if device == nil {
		return ErrDeviceNotFound
	}
	if !device.Active {
		return nil
	}

	if err := s.db.DeactivateDevice(deviceID); err != nil {
		return fmt.Errorf("deactivate device: %w", err)
	}
	cancelled, err := s.db.CancelSessionsForDevice(deviceID)
	if err != nil {
		return fmt.Errorf("cancel sessions: %w", err)
	}

	s.telemetry.TrackDeviceDeactivated(int(cancelled))

	return nil
}

// Get returns a device by ID.
func (s *Service) Get(deviceID string) (*models.Device, error) {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

// List returns known devices.
func (s *Service) List(activeOnly bool) ([]models.Device, error) {
	return s.db.ListDevices(activeOnly)
}

// RequireActive returns the device if it exists and is active.
func (s *Service) RequireActive(deviceID string) (*models.Device, error) {
	device, err := s.db.GetDevice(deviceID)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, ErrDeviceNotFound
	}
	if !device.Active {
		return nil, ErrDeviceInactive
	}
	return device, nil
}
