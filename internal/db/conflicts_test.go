package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asteroid-belt/fieldsync/internal/models"
)

func seedConflict(t *testing.T, db *DB, id, deviceID, sessionID string) {
	t.Helper()
	require.NoError(t, db.CreateConflict(&models.Conflict{
		ID:          id,
		SessionID:   sessionID,
		DeviceID:    deviceID,
		ContentType: "module",
		ContentID:   "m-1",
		Type:        models.ConflictUpdateUpdate,
		ServerValue: []byte(`{"status":"published"}`),
		ClientValue: []byte(`{"status":"draft"}`),
	}))
}

func TestAttachResolution_Once(t *testing.T) {
	db := testDB(t)
	seedConflict(t, db, "c1", "tablet-1", "s1")

	require.NoError(t, db.AttachResolution("c1", models.StrategyServerWins,
		models.WinnerServer, []byte(`{"status":"published"}`), "auto"))

	got, err := db.GetConflict("c1")
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Equal(t, models.WinnerServer, got.Winner)
	assert.NotNil(t, got.ResolvedAt)

	// A second resolution must not overwrite the first
	require.NoError(t, db.AttachResolution("c1", models.StrategyClientWins,
		models.WinnerClient, []byte(`{"status":"draft"}`), "reviewer-9"))

	got, err = db.GetConflict("c1")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerServer, got.Winner)
	assert.Equal(t, "auto", got.ResolvedBy)
}

func TestListPendingConflicts(t *testing.T) {
	db := testDB(t)
	seedConflict(t, db, "c1", "tablet-1", "s1")
	time.Sleep(5 * time.Millisecond)
	seedConflict(t, db, "c2", "tablet-2", "s2")

	require.NoError(t, db.AttachResolution("c2", models.StrategyServerWins,
		models.WinnerServer, nil, "auto"))

	pending, err := db.ListPendingConflicts("")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].ID)

	scoped, err := db.ListPendingConflicts("tablet-2")
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestCountPendingConflicts(t *testing.T) {
	db := testDB(t)
	seedConflict(t, db, "c1", "tablet-1", "s1")
	seedConflict(t, db, "c2", "tablet-1", "s1")

	count, err := db.CountPendingConflicts("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, db.AttachResolution("c1", models.StrategyServerWins,
		models.WinnerServer, nil, "auto"))

	count, err = db.CountPendingConflicts("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestFindUnitConflict(t *testing.T) {
	db := testDB(t)
	seedConflict(t, db, "c1", "tablet-1", "s1")

	got, err := db.FindUnitConflict("tablet-1", models.ContentRef{
		ContentType: "module", ContentID: "m-1",
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.ID)

	none, err := db.FindUnitConflict("tablet-1", models.ContentRef{
		ContentType: "module", ContentID: "m-2",
	})
	require.NoError(t, err)
	assert.Nil(t, none)
}
