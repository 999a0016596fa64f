// Package ledger is the append-only, idempotent log of actions recorded
// while a device was offline. The device generates each entry's idempotency
// key itself, so replays after app restarts dedupe naturally; entries are
// immutable intent records mutated only by the sync pipeline.
package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/hash"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

// ApplyStatus is the outcome class reported by the business-effect applier.
type ApplyStatus int

// Applier outcomes.
const (
	ApplyApplied ApplyStatus = iota
	ApplyConflict
	ApplyRejected
)

// ApplyResult is the applier's report for one entry. On ApplyConflict the
// server's current value and timestamp accompany it so the divergence can
// be recorded.
type ApplyResult struct {
	Status          ApplyStatus
	ServerValue     []byte
	ServerTimestamp time.Time
	Reason          string
}

// Applier applies an entry's business effect to server-side state. The
// payload's business semantics are opaque to this package. A returned error
// is treated as a transient failure and retried; permanent rejection is an
// ApplyRejected result, not an error.
type Applier interface {
	ApplyProgress(ctx context.Context, entry *models.ProgressEntry) (ApplyResult, error)
}

// Service provides ledger operations.
type Service struct {
	db        *db.DB
	telemetry telemetry.Client

	retryCeiling int
}

// New creates a new ledger service.
func New(database *db.DB, tc telemetry.Client, retryCeiling int) *Service {
	if retryCeiling <= 0 {
		retryCeiling = 3
	}
	return &Service{db: database, telemetry: tc, retryCeiling: retryCeiling}
}

// DeriveKey builds an idempotency key from a device ID and its monotonic
// local counter, the scheme devices use so a replayed action produces the
// same key.
func DeriveKey(deviceID string, counter uint64) string {
	return hash.TruncatedSHA256(deviceID + ":" + strconv.FormatUint(counter, 10))
}

// RecordInput carries one offline action.
type RecordInput struct {
	Key      string // client-generated idempotency key
	DeviceID string
	TenantID string
	UserID   string

	Payload    []byte
	RecordedAt time.Time // on-device wall clock
}

// Record appends an entry to the ledger. Replaying the same key returns the
// original entry unchanged; the business effect can never be applied twice.
func (s *Service) Record(in RecordInput) (*models.ProgressEntry, error) {
	if in.Key == "" {
		return nil, ErrMissingKey
	}

	if existing, err := s.db.GetProgressEntry(in.Key); err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	} else if existing != nil {
		s.telemetry.TrackEntryRecorded(true)
		return existing, nil
	}

	recordedAt := in.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	entry := &models.ProgressEntry{
		ID:          in.Key,
		DeviceID:    in.DeviceID,
		TenantID:    in.TenantID,
		UserID:      in.UserID,
		Payload:     in.Payload,
		PayloadHash: hash.SHA256(in.Payload),
		RecordedAt:  recordedAt,
		Status:      models.EntryUnsynced,
	}
	if err := s.db.InsertProgressEntry(entry); err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	s.telemetry.TrackEntryRecorded(false)

	// The insert is DO NOTHING on key collision, so a concurrent replay
	// still lands on the original row.
	return s.db.GetProgressEntry(in.Key)
}

// SubmitOutcome reports what happened to one entry during submission.
type SubmitOutcome struct {
	Status models.EntryStatus

	// Set when Status is conflict-pending
	ServerValue     []byte
	ServerTimestamp time.Time

	// Set when Status is rejected or permanently-failed
	Reason string
}

// Submit pushes one entry's business effect to the server. Called by the
// orchestrator's upload path. The transition from pending to a new state is
// atomic from the caller's point of view; transient failures bump the
// persisted retry counter so retry state survives process restarts, and an
// entry that exhausts the ceiling is marked permanently failed - never
// silently dropped.
func (s *Service) Submit(ctx context.Context, applier Applier, entryID string) (SubmitOutcome, error) {
	entry, err := s.db.GetProgressEntry(entryID)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("lookup entry: %w", err)
	}
	if entry == nil {
		return SubmitOutcome{}, ErrEntryNotFound
	}
	if entry.Status.Terminal() {
		// Idempotent: already applied/rejected/failed entries are not
		// re-submitted.
		return SubmitOutcome{Status: entry.Status, Reason: entry.LastError}, nil
	}

	// Tamper/corruption check before any network round trip
	if hash.SHA256(entry.Payload) != entry.PayloadHash {
		if err := s.db.UpdateEntryStatus(entryID, models.EntryRejected, ErrPayloadMismatch.Error()); err != nil {
			return SubmitOutcome{}, fmt.Errorf("mark rejected: %w", err)
		}
		return SubmitOutcome{Status: models.EntryRejected, Reason: ErrPayloadMismatch.Error()}, ErrPayloadMismatch
	}

	if err := s.db.UpdateEntryStatus(entryID, models.EntrySubmitted, ""); err != nil {
		return SubmitOutcome{}, fmt.Errorf("mark submitted: %w", err)
	}

	result, err := applier.ApplyProgress(ctx, entry)
	if err != nil {
		return s.handleTransient(entryID, err)
	}

	switch result.Status {
	case ApplyApplied:
		if err := s.db.UpdateEntryStatus(entryID, models.EntryApplied, ""); err != nil {
			return SubmitOutcome{}, fmt.Errorf("mark applied: %w", err)
		}
		return SubmitOutcome{Status: models.EntryApplied}, nil

	case ApplyConflict:
		if err := s.db.UpdateEntryStatus(entryID, models.EntryConflictPending, ""); err != nil {
			return SubmitOutcome{}, fmt.Errorf("mark conflict pending: %w", err)
		}
		return SubmitOutcome{
			Status:          models.EntryConflictPending,
			ServerValue:     result.ServerValue,
			ServerTimestamp: result.ServerTimestamp,
		}, nil

	default: // ApplyRejected
		if err := s.db.UpdateEntryStatus(entryID, models.EntryRejected, result.Reason); err != nil {
			return SubmitOutcome{}, fmt.Errorf("mark rejected: %w", err)
		}
		return SubmitOutcome{Status: models.EntryRejected, Reason: result.Reason}, nil
	}
}

// handleTransient bumps the persisted retry counter and either re-queues
// the entry for the next session or marks it permanently failed.
func (s *Service) handleTransient(entryID string, cause error) (SubmitOutcome, error) {
	msg := fmt.Sprintf("%s: %v", ErrTransientNetwork.Error(), cause)
	retries, err := s.db.BumpEntryRetry(entryID, msg)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("bump retry: %w", err)
	}

	if retries >= s.retryCeiling {
		if err := s.db.UpdateEntryStatus(entryID, models.EntryFailed, msg); err != nil {
			return SubmitOutcome{}, fmt.Errorf("mark failed: %w", err)
		}
		s.telemetry.TrackEntryPermanentlyFailed(retries)
		return SubmitOutcome{Status: models.EntryFailed, Reason: msg}, nil
	}

	if err := s.db.UpdateEntryStatus(entryID, models.EntryUnsynced, msg); err != nil {
		return SubmitOutcome{}, fmt.Errorf("re-queue entry: %w", err)
	}
	return SubmitOutcome{Status: models.EntryUnsynced, Reason: msg}, fmt.Errorf("%w: %v", ErrTransientNetwork, cause)
}

// MarkApplied transitions a conflict-pending entry once its divergence is
// resolved.
func (s *Service) MarkApplied(entryID string) error {
	return s.db.UpdateEntryStatus(entryID, models.EntryApplied, "")
}

// Pending returns the device's entries awaiting application, oldest first.
func (s *Service) Pending(deviceID string) ([]models.ProgressEntry, error) {
	return s.db.PendingProgressEntries(deviceID)
}

// ListFailed returns permanently-failed entries for operator attention.
func (s *Service) ListFailed(deviceID string) ([]models.ProgressEntry, error) {
	return s.db.ListFailedEntries(deviceID)
}

// Get returns one entry by idempotency key.
func (s *Service) Get(entryID string) (*models.ProgressEntry, error) {
	entry, err := s.db.GetProgressEntry(entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return entry, nil
}
