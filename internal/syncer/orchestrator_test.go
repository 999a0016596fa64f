package syncer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/config"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/hash"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

type env struct {
	db        *db.DB
	registry  *registry.Service
	conflicts *conflict.Service
	ledger    *ledger.Service
	syncer    *Service
}

func testEnv(t *testing.T) *env {
	t.Helper()

	database, err := db.New(db.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	t.Setenv("FIELDSYNC_TELEMETRY_TRACKING_ENABLED", "false")
	tc := telemetry.New(nil)

	cfg := config.SyncConfig{
		ItemAttempts:  3,
		RetryCeiling:  3,
		FailureRatio:  0.5,
		SessionWindow: 15 * time.Minute,
		FetchRate:     500,
	}

	reg := registry.New(database, tc)
	cacheSvc := cache.New(database, tc, 0)
	conflictSvc := conflict.New(database, tc)
	ledgerSvc := ledger.New(database, tc, cfg.RetryCeiling)

	return &env{
		db:        database,
		registry:  reg,
		conflicts: conflictSvc,
		ledger:    ledgerSvc,
		syncer:    New(database, reg, cacheSvc, conflictSvc, ledgerSvc, tc, cfg),
	}
}

func registerDevice(t *testing.T, e *env, id string) *models.Device {
	t.Helper()
	device, err := e.registry.Register(registry.RegisterInput{
		DeviceID: id,
		Type:     models.DeviceTablet,
		Capabilities: models.DeviceCapabilities{
			StorageCapacity: 10 << 20,
		},
	})
	require.NoError(t, err)
	return device
}

// fakeSource serves a fixed catalog. Corrupt refs return payloads that fail
// the catalog hash check; failing refs error a scripted number of times.
type fakeSource struct {
	items    []RemoteItem
	payloads map[string][]byte
	corrupt  map[string]bool
	failures map[string]int
	fetches  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		payloads: map[string][]byte{},
		corrupt:  map[string]bool{},
		failures: map[string]int{},
	}
}

func (f *fakeSource) add(contentType, contentID, ver string, payload []byte) RemoteItem {
	item := RemoteItem{
		Ref:        models.ContentRef{ContentType: contentType, ContentID: contentID},
		Version:    ver,
		Hash:       hash.SHA256(payload),
		Priority:   models.PriorityMedium,
		ModifiedAt: time.Now().UTC(),
	}
	f.items = append(f.items, item)
	f.payloads[contentType+"/"+contentID] = payload
	return item
}

func (f *fakeSource) ListContent(_ context.Context, _ string, _ []string, _ *time.Time) ([]RemoteItem, error) {
	return f.items, nil
}

func (f *fakeSource) FetchContent(_ context.Context, ref models.ContentRef, _ string) ([]byte, error) {
	f.fetches++
	key := ref.ContentType + "/" + ref.ContentID
	if n := f.failures[key]; n > 0 {
		f.failures[key] = n - 1
		return nil, errors.New("connection reset")
	}
	if f.corrupt[key] {
		return []byte("garbage"), nil
	}
	return f.payloads[key], nil
}

// fakeApplier answers every entry with the same scripted result.
type fakeApplier struct {
	result ledger.ApplyResult
	err    error
}

func (f *fakeApplier) ApplyProgress(context.Context, *models.ProgressEntry) (ledger.ApplyResult, error) {
	return f.result, f.err
}

func openDownload(t *testing.T, e *env, deviceID string) *models.SyncSession {
	t.Helper()
	session, err := e.syncer.Open(OpenInput{
		DeviceID:  deviceID,
		Direction: models.DirectionDownload,
	})
	require.NoError(t, err)
	return session
}

func TestOpen_UnknownAndInactiveDevice(t *testing.T) {
	e := testEnv(t)

	_, err := e.syncer.Open(OpenInput{DeviceID: "ghost", Direction: models.DirectionDownload})
	assert.ErrorIs(t, err, registry.ErrDeviceNotFound)

	registerDevice(t, e, "tablet-1")
	require.NoError(t, e.registry.Deactivate("tablet-1"))

	_, err = e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionDownload})
	assert.ErrorIs(t, err, registry.ErrDeviceInactive)
}

func TestOpen_OneActiveSessionPerDevice(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	first := openDownload(t, e, "tablet-1")
	assert.Equal(t, models.SessionPending, first.Status)

	_, err := e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionDownload})
	assert.ErrorIs(t, err, ErrSessionAlreadyActive)

	// A second device is unaffected
	registerDevice(t, e, "tablet-2")
	_, err = e.syncer.Open(OpenInput{DeviceID: "tablet-2", Direction: models.DirectionDownload})
	assert.NoError(t, err)
}

func TestOpen_Validation(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	_, err := e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidDirection)

	_, err = e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionDownload, Strategy: "coin-flip"})
	assert.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestRun_DownloadThenConverge(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))
	source.add("module", "m-2", "1.0.0", []byte(`{"title":"Knife Skills"}`))
	source.add("recipe", "r-1", "2.1.0", []byte(`{"name":"Stock"}`))

	session := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 3, final.TotalItems)
	assert.Equal(t, 3, final.ProcessedItems)
	assert.Equal(t, 3, final.SuccessfulItems)
	assert.Positive(t, final.BytesMoved)
	assert.NotNil(t, final.StartedAt)
	assert.NotNil(t, final.CompletedAt)

	// Second session against an unchanged catalog moves nothing
	rerun := openDownload(t, e, "tablet-1")
	final, err = e.syncer.Run(context.Background(), source, nil, rerun.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 3, final.SkippedItems)
	assert.Zero(t, final.SuccessfulItems)
	assert.Zero(t, final.BytesMoved)
}

func TestRun_DownloadPicksUpNewVersions(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))

	session := openDownload(t, e, "tablet-1")
	_, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	// Server publishes a newer version of the same unit
	source.items = nil
	source.add("module", "m-1", "1.1.0", []byte(`{"title":"Food Safety v2"}`))

	rerun := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(context.Background(), source, nil, rerun.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, final.SuccessfulItems)
	assert.Zero(t, final.SkippedItems)
}

func TestRun_FullResyncIgnoresCache(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))

	session := openDownload(t, e, "tablet-1")
	_, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	rerun, err := e.syncer.Open(OpenInput{
		DeviceID:   "tablet-1",
		Direction:  models.DirectionDownload,
		FullResync: true,
	})
	require.NoError(t, err)

	final, err := e.syncer.Run(context.Background(), source, nil, rerun.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.SuccessfulItems)
	assert.Zero(t, final.SkippedItems)
}

func TestRun_PerItemRetryBudget(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))
	// Two transient failures, then success: stays within the budget of 3
	source.failures["module/m-1"] = 2

	session := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 1, final.SuccessfulItems)
	assert.Equal(t, 3, source.fetches)
}

func TestRun_FailureRatioFailsSession(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))
	// Corrupt payloads never pass the hash check, exhausting every attempt
	source.corrupt["module/m-1"] = true

	session := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionFailed, final.Status)
	assert.Equal(t, 1, final.FailedItems)
	assert.NotEmpty(t, final.ErrorMessage)
}

func TestRun_FailureBelowRatioCompletes(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	for i := 0; i < 4; i++ {
		source.add("module", fmt.Sprintf("m-%d", i), "1.0.0", []byte(fmt.Sprintf(`{"n":%d}`, i)))
	}
	source.corrupt["module/m-0"] = true

	session := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	// 1 of 4 failed: under the 0.5 ceiling
	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 1, final.FailedItems)
	assert.Equal(t, 3, final.SuccessfulItems)
}

func TestRun_UploadApplied(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	for i := 0; i < 3; i++ {
		_, err := e.ledger.Record(ledger.RecordInput{
			Key:      ledger.DeriveKey("tablet-1", uint64(i)),
			DeviceID: "tablet-1",
			Payload:  []byte(fmt.Sprintf(`{"action":"completed_module","n":%d}`, i)),
		})
		require.NoError(t, err)
	}

	session, err := e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionUpload})
	require.NoError(t, err)

	applier := &fakeApplier{result: ledger.ApplyResult{Status: ledger.ApplyApplied}}
	final, err := e.syncer.Run(context.Background(), nil, applier, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 3, final.TotalItems)
	assert.Equal(t, 3, final.SuccessfulItems)

	pending, err := e.ledger.Pending("tablet-1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRun_UploadConflictAutoResolved(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	_, err := e.ledger.Record(ledger.RecordInput{
		Key:        "entry-1",
		DeviceID:   "tablet-1",
		Payload:    []byte(`{"score":95}`),
		RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	session, err := e.syncer.Open(OpenInput{
		DeviceID:  "tablet-1",
		Direction: models.DirectionUpload,
		Strategy:  models.StrategyServerWins,
	})
	require.NoError(t, err)

	applier := &fakeApplier{result: ledger.ApplyResult{
		Status:          ledger.ApplyConflict,
		ServerValue:     []byte(`{"score":80}`),
		ServerTimestamp: time.Now().UTC().Add(-time.Hour),
	}}
	final, err := e.syncer.Run(context.Background(), nil, applier, session.ID)
	require.NoError(t, err)

	// server-wins resolves automatically, so the session still completes
	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Equal(t, 1, final.ConflictsDetected)
	assert.Equal(t, 1, final.ConflictsResolved)
	assert.Zero(t, final.ConflictsPending)

	entry, err := e.ledger.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryApplied, entry.Status)
}

func TestRun_UploadConflictEscalatesSession(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	_, err := e.ledger.Record(ledger.RecordInput{
		Key:        "entry-1",
		DeviceID:   "tablet-1",
		Payload:    []byte(`{"score":95}`),
		RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	session, err := e.syncer.Open(OpenInput{
		DeviceID:  "tablet-1",
		Direction: models.DirectionUpload,
		Strategy:  models.StrategyManualReview,
	})
	require.NoError(t, err)

	applier := &fakeApplier{result: ledger.ApplyResult{
		Status:      ledger.ApplyConflict,
		ServerValue: []byte(`{"score":80}`),
	}}
	final, err := e.syncer.Run(context.Background(), nil, applier, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionConflict, final.Status)
	assert.Equal(t, 1, final.ConflictsDetected)
	assert.Equal(t, 1, final.ConflictsPending)

	entry, err := e.ledger.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryConflictPending, entry.Status)
}

func TestRun_ManualResolutionConvergesEntry(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	_, err := e.ledger.Record(ledger.RecordInput{
		Key:        "entry-1",
		DeviceID:   "tablet-1",
		Payload:    []byte(`{"score":95}`),
		RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	session, err := e.syncer.Open(OpenInput{
		DeviceID:  "tablet-1",
		Direction: models.DirectionUpload,
		Strategy:  models.StrategyManualReview,
	})
	require.NoError(t, err)

	applier := &fakeApplier{result: ledger.ApplyResult{
		Status:      ledger.ApplyConflict,
		ServerValue: []byte(`{"score":80}`),
	}}
	final, err := e.syncer.Run(context.Background(), nil, applier, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionConflict, final.Status)

	open, err := e.conflicts.ListPending("tablet-1")
	require.NoError(t, err)
	require.Len(t, open, 1)

	// The reviewer's verdict settles the ledger entry behind the divergence
	_, err = e.conflicts.Resolve(open[0].ID, []byte(`{"score":90}`), "reviewer-1")
	require.NoError(t, err)

	entry, err := e.ledger.Get("entry-1")
	require.NoError(t, err)
	assert.Equal(t, models.EntryApplied, entry.Status)

	// The next session has nothing left to submit and no duplicate
	// conflict appears for the unit
	rerun, err := e.syncer.Open(OpenInput{
		DeviceID:  "tablet-1",
		Direction: models.DirectionUpload,
		Strategy:  models.StrategyManualReview,
	})
	require.NoError(t, err)
	final, err = e.syncer.Run(context.Background(), nil, applier, rerun.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	assert.Zero(t, final.ProcessedItems)

	open, err = e.conflicts.ListPending("tablet-1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestRun_UploadTransientCountsAsFailure(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	_, err := e.ledger.Record(ledger.RecordInput{
		Key:      "entry-1",
		DeviceID: "tablet-1",
		Payload:  []byte(`{"score":95}`),
	})
	require.NoError(t, err)

	session, err := e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionUpload})
	require.NoError(t, err)

	applier := &fakeApplier{err: errors.New("connection reset")}
	final, err := e.syncer.Run(context.Background(), nil, applier, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionFailed, final.Status)
	assert.Equal(t, 1, final.FailedItems)

	// The entry stays queued for the next session
	pending, err := e.ledger.Pending("tablet-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestRun_Bidirectional(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))

	_, err := e.ledger.Record(ledger.RecordInput{
		Key:      "entry-1",
		DeviceID: "tablet-1",
		Payload:  []byte(`{"score":95}`),
	})
	require.NoError(t, err)

	session, err := e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionBidirectional})
	require.NoError(t, err)

	applier := &fakeApplier{result: ledger.ApplyResult{Status: ledger.ApplyApplied}}
	final, err := e.syncer.Run(context.Background(), source, applier, session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionCompleted, final.Status)
	// Both legs contribute to the total: one download, one upload
	assert.Equal(t, 2, final.TotalItems)
	assert.Equal(t, 2, final.ProcessedItems)
	assert.Equal(t, 2, final.SuccessfulItems)
}

func TestRun_TerminalSessionIsFinal(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	session := openDownload(t, e, "tablet-1")
	_, err := e.syncer.Run(context.Background(), source, nil, session.ID)
	require.NoError(t, err)

	_, err = e.syncer.Run(context.Background(), source, nil, session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestCancel(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	session := openDownload(t, e, "tablet-1")

	cancelled, err := e.syncer.Cancel(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)

	// Idempotent
	again, err := e.syncer.Cancel(session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, again.Status)

	// Cancelling frees the device for a new session
	_, err = e.syncer.Open(OpenInput{DeviceID: "tablet-1", Direction: models.DirectionDownload})
	assert.NoError(t, err)
}

func TestCancel_CompletedSessionRefused(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	session := openDownload(t, e, "tablet-1")
	_, err := e.syncer.Run(context.Background(), newFakeSource(), nil, session.ID)
	require.NoError(t, err)

	_, err = e.syncer.Cancel(session.ID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestRun_ContextCancellation(t *testing.T) {
	e := testEnv(t)
	registerDevice(t, e, "tablet-1")

	source := newFakeSource()
	source.add("module", "m-1", "1.0.0", []byte(`{"title":"Food Safety"}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := openDownload(t, e, "tablet-1")
	final, err := e.syncer.Run(ctx, source, nil, session.ID)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SessionCancelled, final.Status)
}
