package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

func TestInsertProgressEntry_Dedupes(t *testing.T) {
	db := testDB(t)
	testDevice(t, db, "tablet-1", 100)

	entry := &models.ProgressEntry{
		ID:          "key-a",
		DeviceID:    "tablet-1",
		UserID:      "user-1",
		Payload:     []byte(`{"action":"completed_module"}`),
		PayloadHash: "abc",
		RecordedAt:  time.Now().UTC(),
		Status:      models.EntryUnsynced,
	}
	require.NoError(t, db.InsertProgressEntry(entry))

	// Replay with a mutated payload: the original row wins
	replay := *entry
	replay.Payload = []byte(`{"action":"tampered"}`)
	replay.PayloadHash = "xyz"
	require.NoError(t, db.InsertProgressEntry(&replay))

	var count int64
	require.NoError(t, db.Model(&models.ProgressEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := db.GetProgressEntry("key-a")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.PayloadHash)
}

func TestPendingProgressEntries_Order(t *testing.T) {
	db := testDB(t)
	testDevice(t, db, "tablet-1", 100)

	base := time.Now().UTC()
	for i, spec := range []struct {
		id     string
		status models.EntryStatus
		offset time.Duration
	}{
		{"later", models.EntryUnsynced, 2 * time.Minute},
		{"earlier", models.EntryUnsynced, 0},
		{"done", models.EntryApplied, time.Minute},
		{"stuck", models.EntryConflictPending, 3 * time.Minute},
	} {
		_ = i
		require.NoError(t, db.InsertProgressEntry(&models.ProgressEntry{
			ID:         spec.id,
			DeviceID:   "tablet-1",
			RecordedAt: base.Add(spec.offset),
			Status:     spec.status,
		}))
	}

	pending, err := db.PendingProgressEntries("tablet-1")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "earlier", pending[0].ID)
	assert.Equal(t, "later", pending[1].ID)
	assert.Equal(t, "stuck", pending[2].ID)
}

func TestBumpEntryRetry(t *testing.T) {
	db := testDB(t)
	testDevice(t, db, "tablet-1", 100)

	require.NoError(t, db.InsertProgressEntry(&models.ProgressEntry{
		ID:         "key-a",
		DeviceID:   "tablet-1",
		RecordedAt: time.Now().UTC(),
		Status:     models.EntryUnsynced,
	}))

	n, err := db.BumpEntryRetry("key-a", "connection reset")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.BumpEntryRetry("key-a", "timeout")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := db.GetProgressEntry("key-a")
	require.NoError(t, err)
	assert.Equal(t, "timeout", got.LastError)
}

func TestListFailedEntries(t *testing.T) {
	db := testDB(t)
	testDevice(t, db, "tablet-1", 100)
	testDevice(t, db, "tablet-2", 100)

	require.NoError(t, db.InsertProgressEntry(&models.ProgressEntry{
		ID: "f1", DeviceID: "tablet-1", Status: models.EntryFailed,
		RecordedAt: time.Now().UTC(),
	}))
	require.NoError(t, db.InsertProgressEntry(&models.ProgressEntry{
		ID: "f2", DeviceID: "tablet-2", Status: models.EntryFailed,
		RecordedAt: time.Now().UTC(),
	}))
	require.NoError(t, db.InsertProgressEntry(&models.ProgressEntry{
		ID: "ok", DeviceID: "tablet-1", Status: models.EntryApplied,
		RecordedAt: time.Now().UTC(),
	}))

	all, err := db.ListFailedEntries("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	scoped, err := db.ListFailedEntries("tablet-1")
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "f1", scoped[0].ID)
}
