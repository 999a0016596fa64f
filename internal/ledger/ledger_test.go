package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
)

// fakeApplier scripts applier behavior per call.
type fakeApplier struct {
	results []ApplyResult
	errs    []error
	calls   int
}

func (f *fakeApplier) ApplyProgress(ctx context.Context, entry *models.ProgressEntry) (ApplyResult, error) {
	i := f.calls
	f.calls++
	var res ApplyResult
	if i < len(f.results) {
		res = f.results[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

func testService(t *testing.T) (*Service, *db.DB) {
	t.Helper()

	database, err := db.New(db.DefaultConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	t.Setenv("FIELDSYNC_TELEMETRY_TRACKING_ENABLED", "false")
	return New(database, telemetry.New(nil), 3), database
}

func record(t *testing.T, svc *Service, key string) *models.ProgressEntry {
	t.Helper()
	entry, err := svc.Record(RecordInput{
		Key:        key,
		DeviceID:   "tablet-1",
		UserID:     "user-1",
		Payload:    []byte(`{"action":"completed_module","module":"food-safety"}`),
		RecordedAt: time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)
	return entry
}

func TestDeriveKey_Stable(t *testing.T) {
	a := DeriveKey("tablet-1", 42)
	b := DeriveKey("tablet-1", 42)
	c := DeriveKey("tablet-1", 43)
	d := DeriveKey("tablet-2", 42)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestRecord_Idempotent(t *testing.T) {
	svc, database := testService(t)

	first := record(t, svc, "key-a")
	second := record(t, svc, "key-a")

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PayloadHash, second.PayloadHash)

	var count int64
	require.NoError(t, database.Model(&models.ProgressEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecord_RequiresKey(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Record(RecordInput{DeviceID: "tablet-1"})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestSubmit_Applied(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")

	applier := &fakeApplier{results: []ApplyResult{{Status: ApplyApplied}}}
	out, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryApplied, out.Status)

	entry, err := svc.Get("key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryApplied, entry.Status)
	assert.NotNil(t, entry.AppliedAt)
}

// Submitting an already-applied entry never re-applies the effect.
func TestSubmit_AppliedIsIdempotent(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")

	applier := &fakeApplier{results: []ApplyResult{{Status: ApplyApplied}}}
	_, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)

	out, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryApplied, out.Status)
	assert.Equal(t, 1, applier.calls, "applier must not be called for a terminal entry")
}

func TestSubmit_Conflict(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")

	serverTS := time.Now().UTC()
	applier := &fakeApplier{results: []ApplyResult{{
		Status:          ApplyConflict,
		ServerValue:     []byte(`{"score":80}`),
		ServerTimestamp: serverTS,
	}}}

	out, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryConflictPending, out.Status)
	assert.Equal(t, []byte(`{"score":80}`), out.ServerValue)

	entry, err := svc.Get("key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryConflictPending, entry.Status)
}

func TestSubmit_Rejected(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")

	applier := &fakeApplier{results: []ApplyResult{{
		Status: ApplyRejected,
		Reason: "unknown module",
	}}}

	out, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryRejected, out.Status)
	assert.Equal(t, "unknown module", out.Reason)
}

// Three transient failures exhaust the retry ceiling; the entry becomes
// permanently failed and surfaces in ListFailed rather than being dropped.
func TestSubmit_RetryCeiling(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")

	netErr := errors.New("connection reset")
	applier := &fakeApplier{errs: []error{netErr, netErr, netErr}}

	for i := 0; i < 2; i++ {
		out, err := svc.Submit(context.Background(), applier, "key-a")
		assert.ErrorIs(t, err, ErrTransientNetwork)
		assert.Equal(t, models.EntryUnsynced, out.Status)
	}

	out, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err, "hitting the ceiling is an outcome, not an error")
	assert.Equal(t, models.EntryFailed, out.Status)

	failed, err := svc.ListFailed("tablet-1")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "key-a", failed[0].ID)
	assert.Equal(t, 3, failed[0].RetryCount)
}

func TestSubmit_TamperCheck(t *testing.T) {
	svc, database := testService(t)
	record(t, svc, "key-a")

	require.NoError(t, database.Model(&models.ProgressEntry{}).
		Where("id = ?", "key-a").
		Update("payload", []byte(`{"action":"tampered"}`)).Error)

	applier := &fakeApplier{}
	_, err := svc.Submit(context.Background(), applier, "key-a")
	assert.ErrorIs(t, err, ErrPayloadMismatch)
	assert.Equal(t, 0, applier.calls, "tampered entries never reach the applier")

	entry, err := svc.Get("key-a")
	require.NoError(t, err)
	assert.Equal(t, models.EntryRejected, entry.Status)
}

func TestSubmit_NotFound(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.Submit(context.Background(), &fakeApplier{}, "ghost")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPending_ExcludesTerminal(t *testing.T) {
	svc, _ := testService(t)
	record(t, svc, "key-a")
	record(t, svc, "key-b")

	applier := &fakeApplier{results: []ApplyResult{{Status: ApplyApplied}}}
	_, err := svc.Submit(context.Background(), applier, "key-a")
	require.NoError(t, err)

	pending, err := svc.Pending("tablet-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "key-b", pending[0].ID)
}
