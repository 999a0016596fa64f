// Package syncer orchestrates sync sessions: the bounded, observable unit
// of work in which a device reconciles with the server. A session walks a
// fixed state machine (pending, in_progress, then exactly one of completed,
// failed, conflict or cancelled) and is never resumed once terminal; the
// next reconciliation is a new session.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/config"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/hash"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/log"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
	"github.com/asteroid-belt/fieldsync/pkg/version"
)

// RemoteItem is one content unit as the server catalog describes it.
type RemoteItem struct {
	Ref      models.ContentRef
	Version  string
	Hash     string
	Priority models.CachePriority

	ModifiedAt time.Time
	ExpiresAt  *time.Time
}

// ContentSource is the server-side content catalog the download path pulls
// from. ListContent returns the units visible to the device within the
// session scope; FetchContent returns one unit's payload at the listed
// version.
type ContentSource interface {
	ListContent(ctx context.Context, deviceID string, scope []string, since *time.Time) ([]RemoteItem, error)
	FetchContent(ctx context.Context, ref models.ContentRef, contentVersion string) ([]byte, error)
}

// Service runs sync sessions for registered devices.
type Service struct {
	db        *db.DB
	registry  *registry.Service
	cache     *cache.Service
	conflicts *conflict.Service
	ledger    *ledger.Service
	telemetry telemetry.Client

	cfg config.SyncConfig
}

// New creates a new session orchestrator.
func New(database *db.DB, reg *registry.Service, cacheSvc *cache.Service,
	conflictSvc *conflict.Service, ledgerSvc *ledger.Service,
	tc telemetry.Client, cfg config.SyncConfig) *Service {
	if cfg.ItemAttempts <= 0 {
		cfg.ItemAttempts = 3
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.SessionWindow <= 0 {
		cfg.SessionWindow = 15 * time.Minute
	}
	if cfg.FetchRate <= 0 {
		cfg.FetchRate = 20
	}
	return &Service{
		db:        database,
		registry:  reg,
		cache:     cacheSvc,
		conflicts: conflictSvc,
		ledger:    ledgerSvc,
		telemetry: tc,
		cfg:       cfg,
	}
}

// OpenInput describes the session a device is requesting.
type OpenInput struct {
	DeviceID string
	TenantID string
	UserID   string

	Direction    models.SyncDirection
	ContentTypes []string
	Since        *time.Time
	FullResync   bool

	// Strategy is the conflict policy for the session; empty defaults to
	// latest-timestamp.
	Strategy models.ResolutionStrategy
}

// Open creates a new pending session for an active device. A device with a
// non-terminal session is refused: the partial unique index backs the
// pre-check, so two concurrent opens cannot both succeed.
func (s *Service) Open(in OpenInput) (*models.SyncSession, error) {
	device, err := s.registry.RequireActive(in.DeviceID)
	if err != nil {
		return nil, err
	}

	if !in.Direction.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, in.Direction)
	}
	strategy := in.Strategy
	if strategy == "" {
		strategy = models.StrategyLatestTimestamp
	}
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, in.Strategy)
	}

	if active, err := s.db.ActiveSession(in.DeviceID); err != nil {
		return nil, fmt.Errorf("lookup active session: %w", err)
	} else if active != nil {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionAlreadyActive, active.ID, active.Status)
	}

	now := time.Now().UTC()
	session := &models.SyncSession{
		ID:           uuid.New().String(),
		DeviceID:     device.ID,
		TenantID:     in.TenantID,
		UserID:       in.UserID,
		Direction:    in.Direction,
		ContentTypes: strings.Join(in.ContentTypes, ","),
		Since:        in.Since,
		FullResync:   in.FullResync,
		Strategy:     strategy,
		Status:       models.SessionPending,
		WindowStart:  now,
		WindowEnd:    now.Add(s.cfg.SessionWindow),
	}
	if err := s.db.CreateSession(session); err != nil {
		// The index catches the race the pre-check cannot
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, ErrSessionAlreadyActive
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.telemetry.TrackSessionOpened(string(session.Direction), session.FullResync, len(session.Scope()))
	log.Printf("session %s opened for device %s (%s)", session.ID, device.ID, session.Direction)

	return session, nil
}

// runTally accumulates the per-path outcome of one run.
type runTally struct {
	failed           int
	processed        int
	conflictsPending int
	expired          bool
}

// Run executes a pending session to a terminal state. Counters persist
// after every item, so a crash mid-run leaves an accurate partial record;
// the session window is a soft deadline checked between items, never
// interrupting one in flight.
func (s *Service) Run(ctx context.Context, source ContentSource, applier ledger.Applier, sessionID string) (*models.SyncSession, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, session.Status)
	}

	if err := s.db.UpdateSessionStatus(sessionID, models.SessionInProgress, ""); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(s.cfg.FetchRate), 1)
	var tally runTally

	if session.Direction.Downloads() && source != nil {
		if err := s.runDownload(ctx, source, limiter, session, &tally); err != nil {
			return s.finalize(session, &tally, err)
		}
	}
	if session.Direction.Uploads() && applier != nil {
		if err := s.runUpload(ctx, applier, session, &tally); err != nil {
			return s.finalize(session, &tally, err)
		}
	}

	return s.finalize(session, &tally, nil)
}

// runDownload pulls server content into the device cache. Unchanged units
// are skipped unless the session is a full resync, making sync incremental
// by default.
func (s *Service) runDownload(ctx context.Context, source ContentSource, limiter *rate.Limiter, session *models.SyncSession, tally *runTally) error {
	items, err := source.ListContent(ctx, session.DeviceID, session.Scope(), session.Since)
	if err != nil {
		return fmt.Errorf("list content: %w", err)
	}
	if err := s.db.SetSessionTotal(session.ID, len(items)); err != nil {
		return fmt.Errorf("set total: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if session.Expired(time.Now().UTC()) {
			tally.expired = true
			return nil
		}
		if !session.InScope(item.Ref.ContentType) {
			continue
		}

		if !session.FullResync {
			skip, err := s.unchanged(session.DeviceID, item)
			if err != nil {
				return err
			}
			if skip {
				tally.processed++
				if err := s.db.BumpSessionCounters(session.ID, db.SessionCounters{Processed: 1, Skipped: 1}); err != nil {
					return fmt.Errorf("bump counters: %w", err)
				}
				continue
			}
		}

		payload, err := s.fetchVerified(ctx, source, limiter, item)
		counters := db.SessionCounters{Processed: 1}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("session %s: fetch %s/%s failed: %v", session.ID, item.Ref.ContentType, item.Ref.ContentID, err)
			tally.failed++
			counters.Failed = 1
		} else if err := s.cache.Put(session.DeviceID, item.Ref, payload, cache.PutInput{
			Version:          item.Version,
			Priority:         item.Priority,
			ServerModifiedAt: item.ModifiedAt,
			ExpiresAt:        item.ExpiresAt,
		}); err != nil {
			log.Errorf("session %s: cache %s/%s failed: %v", session.ID, item.Ref.ContentType, item.Ref.ContentID, err)
			tally.failed++
			counters.Failed = 1
		} else {
			counters.Successful = 1
			counters.Bytes = int64(len(payload))
		}

		tally.processed++
		if err := s.db.BumpSessionCounters(session.ID, counters); err != nil {
			return fmt.Errorf("bump counters: %w", err)
		}
	}
	return nil
}

// unchanged reports whether the cached copy already matches the listed
// server state, so the item can be skipped.
func (s *Service) unchanged(deviceID string, item RemoteItem) (bool, error) {
	entry, err := s.cache.Entry(deviceID, item.Ref)
	if err != nil {
		return false, fmt.Errorf("lookup cache entry: %w", err)
	}
	if entry == nil || entry.NeedsResync {
		return false, nil
	}
	if item.Hash != "" && item.Hash != entry.Hash {
		return false, nil
	}
	return !version.ContentNewer(item.Version, entry.Version), nil
}

// fetchVerified fetches one unit within the per-item retry budget, checking
// each payload against the catalog hash before accepting it.
func (s *Service) fetchVerified(ctx context.Context, source ContentSource, limiter *rate.Limiter, item RemoteItem) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.ItemAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		payload, err := source.FetchContent(ctx, item.Ref, item.Version)
		if err != nil {
			lastErr = err
			continue
		}
		if item.Hash != "" && hash.SHA256(payload) != item.Hash {
			lastErr = fmt.Errorf("payload hash mismatch for %s/%s", item.Ref.ContentType, item.Ref.ContentID)
			continue
		}
		return payload, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", s.cfg.ItemAttempts, lastErr)
}

// runUpload submits the device's pending ledger entries. An applier
// conflict becomes a recorded divergence resolved under the session
// strategy; an auto-resolution marks the entry applied immediately, while
// an escalation leaves it conflict-pending for review.
func (s *Service) runUpload(ctx context.Context, applier ledger.Applier, session *models.SyncSession, tally *runTally) error {
	entries, err := s.ledger.Pending(session.DeviceID)
	if err != nil {
		return fmt.Errorf("list pending entries: %w", err)
	}
	// Additive: the download leg of a bidirectional session already set
	// the total to its item count.
	if err := s.db.AddSessionTotal(session.ID, len(entries)); err != nil {
		return fmt.Errorf("add to total: %w", err)
	}

	for i := range entries {
		entry := &entries[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if session.Expired(time.Now().UTC()) {
			tally.expired = true
			return nil
		}

		counters := db.SessionCounters{Processed: 1}
		out, err := s.ledger.Submit(ctx, applier, entry.ID)
		switch {
		case err != nil:
			// Transient failure or tampered payload: either way the entry
			// did not land this session.
			log.Errorf("session %s: submit %s failed: %v", session.ID, entry.ID, err)
			tally.failed++
			counters.Failed = 1

		case out.Status == models.EntryApplied:
			counters.Successful = 1
			counters.Bytes = int64(len(entry.Payload))

		case out.Status == models.EntryConflictPending:
			resolved, err := s.recordUploadConflict(session, entry, out)
			if err != nil {
				return err
			}
			counters.Detected = 1
			if resolved {
				counters.Resolved = 1
				counters.Successful = 1
			} else {
				counters.Pending = 1
				tally.conflictsPending++
			}

		case out.Status == models.EntryFailed:
			tally.failed++
			counters.Failed = 1

		default: // rejected
			tally.failed++
			counters.Failed = 1
		}

		tally.processed++
		if err := s.db.BumpSessionCounters(session.ID, counters); err != nil {
			return fmt.Errorf("bump counters: %w", err)
		}
	}
	return nil
}

// recordUploadConflict records the divergence behind a conflict-pending
// entry and reports whether the session strategy resolved it.
func (s *Service) recordUploadConflict(session *models.SyncSession, entry *models.ProgressEntry, out ledger.SubmitOutcome) (bool, error) {
	ref := models.ContentRef{ContentType: models.ProgressRefType, ContentID: entry.ID}
	c, err := s.conflicts.Record(conflict.Detected{
		SessionID:       session.ID,
		DeviceID:        session.DeviceID,
		TenantID:        session.TenantID,
		Ref:             ref,
		Type:            conflict.Classify(out.ServerValue, entry.Payload, true),
		ServerValue:     out.ServerValue,
		ClientValue:     entry.Payload,
		ServerTimestamp: out.ServerTimestamp,
		ClientTimestamp: entry.RecordedAt,
	}, session.Strategy)
	if err != nil {
		return false, fmt.Errorf("record conflict: %w", err)
	}

	if c.Resolved {
		if err := s.ledger.MarkApplied(entry.ID); err != nil {
			return false, fmt.Errorf("mark entry applied: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// finalize moves the session to its terminal state. Failure ratio decides
// completed versus failed; pending conflicts trump both. A session
// cancelled concurrently keeps its cancelled state because terminal
// transitions are final at the store layer.
func (s *Service) finalize(session *models.SyncSession, tally *runTally, runErr error) (*models.SyncSession, error) {
	status := models.SessionCompleted
	errMsg := ""

	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = models.SessionCancelled
		errMsg = runErr.Error()
	case runErr != nil:
		status = models.SessionFailed
		errMsg = runErr.Error()
	case tally.conflictsPending > 0:
		status = models.SessionConflict
		errMsg = fmt.Sprintf("%d conflicts awaiting review", tally.conflictsPending)
	case tally.expired:
		status = models.SessionFailed
		errMsg = "session window expired"
	case tally.processed > 0 && float64(tally.failed)/float64(tally.processed) > s.cfg.FailureRatio:
		status = models.SessionFailed
		errMsg = fmt.Sprintf("%d of %d items failed", tally.failed, tally.processed)
	}

	if err := s.db.UpdateSessionStatus(session.ID, status, errMsg); err != nil {
		return nil, fmt.Errorf("finalize session: %w", err)
	}

	final, err := s.db.GetSession(session.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session: %w", err)
	}

	var durationMs int64
	if final.StartedAt != nil && final.CompletedAt != nil {
		durationMs = final.CompletedAt.Sub(*final.StartedAt).Milliseconds()
	}
	s.telemetry.TrackSessionClosed(string(final.Status), final.ProcessedItems,
		final.FailedItems, final.ConflictsPending, final.BytesMoved, durationMs)
	log.Printf("session %s closed: %s (%d processed, %d failed, %d conflicts pending)",
		final.ID, final.Status, final.ProcessedItems, final.FailedItems, final.ConflictsPending)

	if runErr != nil {
		return final, runErr
	}
	return final, nil
}

// Cancel aborts a pending or in-progress session. Cancelling an already
// cancelled session is a no-op; any other terminal state is refused.
func (s *Service) Cancel(sessionID string) (*models.SyncSession, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.Status == models.SessionCancelled {
		return session, nil
	}
	if session.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrSessionTerminal, session.Status)
	}

	if err := s.db.UpdateSessionStatus(sessionID, models.SessionCancelled, "cancelled by operator"); err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}
	s.telemetry.Track(telemetry.EventSessionCancelled, map[string]interface{}{
		"last_status": string(session.Status),
	})

	return s.db.GetSession(sessionID)
}

// Get returns a session by ID.
func (s *Service) Get(sessionID string) (*models.SyncSession, error) {
	session, err := s.db.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List returns recent sessions, optionally scoped to a device.
func (s *Service) List(deviceID string, limit int) ([]models.SyncSession, error) {
	return s.db.ListSessions(deviceID, limit)
}
