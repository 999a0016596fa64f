// Package conflict detects and resolves divergent edits discovered during a
// sync session. Conflicts are recorded append-only: every divergence the
// system ever reconciles stays auditable, automatic resolutions included.
package conflict

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

// Service provides conflict detection and resolution.
type Service struct {
	db        *db.DB
	telemetry telemetry.Client
}

// New creates a new conflict service.
func New(database *db.DB, tc telemetry.Client) *Service {
	return &Service{db: database, telemetry: tc}
}

// Detected carries everything known about one divergence at detection time.
type Detected struct {
	SessionID string
	DeviceID  string
	TenantID  string

	Ref   models.ContentRef
	Field string // optional field-level scope

	Type models.ConflictType

	ServerValue     []byte
	ClientValue     []byte
	ServerTimestamp time.Time
	ClientTimestamp time.Time
	ServerVersion   string
	ClientVersion   string
}

// Record persists a detected divergence and attempts automatic resolution
// with the session's configured strategy. Exactly one open conflict exists
// per content unit: re-detecting a still-unresolved divergence returns the
// existing record instead of duplicating it.
func (s *Service) Record(d Detected, strategy models.ResolutionStrategy) (*models.Conflict, error) {
	if existing, err := s.db.FindUnitConflict(d.DeviceID, d.Ref); err != nil {
		return nil, fmt.Errorf("lookup open conflict: %w", err)
	} else if existing != nil {
		return existing, nil
	}

	c := &models.Conflict{
		ID:              uuid.New().String(),
		SessionID:       d.SessionID,
		DeviceID:        d.DeviceID,
		TenantID:        d.TenantID,
		ContentType:     d.Ref.ContentType,
		ContentID:       d.Ref.ContentID,
		Field:           d.Field,
		Type:            d.Type,
		ServerValue:     d.ServerValue,
		ClientValue:     d.ClientValue,
		ServerTimestamp: d.ServerTimestamp,
		ClientTimestamp: d.ClientTimestamp,
		ServerVersion:   d.ServerVersion,
		ClientVersion:   d.ClientVersion,
		Strategy:        strategy,
	}
	// Compute the resolution first so an escalation to manual review is
	// recorded as the conflict's effective strategy.
	winner, value, resolved := s.applyStrategy(c, strategy)

	if err := s.db.CreateConflict(c); err != nil {
		return nil, fmt.Errorf("create conflict: %w", err)
	}

	s.telemetry.TrackConflictDetected(string(d.Type), string(c.Strategy))

	if resolved {
		if err := s.db.AttachResolution(c.ID, c.Strategy, winner, value, "auto"); err != nil {
			return nil, fmt.Errorf("attach resolution: %w", err)
		}
		s.telemetry.TrackConflictResolved(string(c.Strategy), winner, false)
	}

	return s.db.GetConflict(c.ID)
}

// applyStrategy computes an automatic resolution. It returns resolved=false
// when the strategy defers to manual review, mutating c.Strategy to
// manual-review when an escalation overrides the configured strategy.
func (s *Service) applyStrategy(c *models.Conflict, strategy models.ResolutionStrategy) (winner string, value []byte, resolved bool) {
	switch strategy {
	case models.StrategyServerWins:
		return models.WinnerServer, c.ServerValue, true

	case models.StrategyClientWins:
		return models.WinnerClient, c.ClientValue, true

	case models.StrategyLatestTimestamp:
		// Ties fall back to server-wins
		if c.ClientTimestamp.After(c.ServerTimestamp) {
			return models.WinnerClient, c.ClientValue, true
		}
		return models.WinnerServer, c.ServerValue, true

	case models.StrategyMerge:
		if c.Type != models.ConflictUpdateUpdate && c.Type != models.ConflictCreateCreate {
			// A deletion cannot be merged with an edit
			c.Strategy = models.StrategyManualReview
			return "", nil, false
		}
		merged, ok := mergeDisjoint(c.ServerValue, c.ClientValue)
		if !ok {
			c.Strategy = models.StrategyManualReview
			return "", nil, false
		}
		return models.WinnerMerged, merged, true

	case models.StrategyManualReview:
		return "", nil, false
	}
	return "", nil, false
}

// mergeDisjoint performs a field-level union of two JSON object values. It
// succeeds only when the field sets with differing values are disjoint:
// both sides changing the same field to different values always escalates,
// whatever the configured strategy.
func mergeDisjoint(serverValue, clientValue []byte) ([]byte, bool) {
	var server, client map[string]interface{}
	if err := json.Unmarshal(serverValue, &server); err != nil {
		return nil, false
	}
	if err := json.Unmarshal(clientValue, &client); err != nil {
		return nil, false
	}

	merged := make(map[string]interface{}, len(server)+len(client))
	for k, v := range server {
		merged[k] = v
	}
	for k, v := range client {
		if sv, exists := server[k]; exists && !reflect.DeepEqual(sv, v) {
			return nil, false
		}
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, false
	}
	return out, true
}

// Resolve attaches a manual resolution from an external reviewer. The
// chosen value becomes the converged state for the content unit.
func (s *Service) Resolve(conflictID string, value []byte, reviewer string) (*models.Conflict, error) {
	c, err := s.db.GetConflict(conflictID)
	if err != nil {
		return nil, fmt.Errorf("lookup conflict: %w", err)
	}
	if c == nil {
		return nil, ErrConflictNotFound
	}
	if c.Resolved {
		return nil, ErrAlreadyResolved
	}

	if reviewer == "" {
		reviewer = "reviewer"
	}
	if err := s.db.AttachResolution(conflictID, models.StrategyManualReview,
		models.WinnerManual, value, reviewer); err != nil {
		return nil, fmt.Errorf("attach resolution: %w", err)
	}

	// A verdict on an upload divergence also settles the ledger entry
	// behind it; otherwise the next session would re-submit the entry and
	// re-detect the same divergence.
	if c.ContentType == models.ProgressRefType {
		entry, err := s.db.GetProgressEntry(c.ContentID)
		if err != nil {
			return nil, fmt.Errorf("lookup ledger entry: %w", err)
		}
		if entry != nil && entry.Status == models.EntryConflictPending {
			if err := s.db.UpdateEntryStatus(entry.ID, models.EntryApplied, ""); err != nil {
				return nil, fmt.Errorf("settle ledger entry: %w", err)
			}
		}
	}

	s.telemetry.TrackConflictResolved(string(models.StrategyManualReview), models.WinnerManual, true)

	return s.db.GetConflict(conflictID)
}

// ListPending returns unresolved conflicts for the review surface,
// optionally scoped to a device.
func (s *Service) ListPending(deviceID string) ([]models.Conflict, error) {
	return s.db.ListPendingConflicts(deviceID)
}

// Get returns a conflict by ID.
func (s *Service) Get(conflictID string) (*models.Conflict, error) {
	c, err := s.db.GetConflict(conflictID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrConflictNotFound
	}
	return c, nil
}

// Classify determines the divergence class from what each side holds.
// A nil value means that side no longer has (or never had) the unit.
func Classify(serverValue, clientValue []byte, clientKnewServerCopy bool) models.ConflictType {
	switch {
	case serverValue == nil || clientValue == nil:
		return models.ConflictUpdateDelete
	case !clientKnewServerCopy:
		return models.ConflictCreateCreate
	default:
		return models.ConflictUpdateUpdate
	}
}
