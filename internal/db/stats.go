package db

import (
	"github.com/asteroid-belt/fieldsync/internal/models"
)

// SyncStats are aggregates derived on demand from the immutable session,
// conflict and ledger history. There are no stored counters to drift or
// race.
type SyncStats struct {
	SessionsTotal     int64 `json:"sessions_total"`
	SessionsCompleted int64 `json:"sessions_completed"`
	SessionsFailed    int64 `json:"sessions_failed"`
	SessionsConflict  int64 `json:"sessions_conflict"`
	SessionsCancelled int64 `json:"sessions_cancelled"`

	ConflictsTotal   int64 `json:"conflicts_total"`
	ConflictsPending int64 `json:"conflicts_pending"`

	EntriesApplied int64 `json:"entries_applied"`
	EntriesPending int64 `json:"entries_pending"`
	EntriesFailed  int64 `json:"entries_failed"`

	CachedBytes   int64 `json:"cached_bytes"`
	CachedEntries int64 `json:"cached_entries"`
}

// Stats computes sync aggregates, optionally scoped to one device.
func (db *DB) Stats(deviceID string) (*SyncStats, error) {
	stats := &SyncStats{}

	sessionCounts := []struct {
		status models.SessionStatus
		dest   *int64
	}{
		{models.SessionCompleted, &stats.SessionsCompleted},
		{models.SessionFailed, &stats.SessionsFailed},
		{models.SessionConflict, &stats.SessionsConflict},
		{models.SessionCancelled, &stats.SessionsCancelled},
	}

	q := db.Model(&models.SyncSession{})
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}
	if err := q.Count(&stats.SessionsTotal).Error; err != nil {
		return nil, err
	}
	for _, sc := range sessionCounts {
		q := db.Model(&models.SyncSession{}).Where("status = ?", sc.status)
		if deviceID != "" {
			q = q.Where("device_id = ?", deviceID)
		}
		if err := q.Count(sc.dest).Error; err != nil {
			return nil, err
		}
	}

	cq := db.Model(&models.Conflict{})
	if deviceID != "" {
		cq = cq.Where("device_id = ?", deviceID)
	}
	if err := cq.Count(&stats.ConflictsTotal).Error; err != nil {
		return nil, err
	}
	cq = db.Model(&models.Conflict{}).Where("resolved = ?", false)
	if deviceID != "" {
		cq = cq.Where("device_id = ?", deviceID)
	}
	if err := cq.Count(&stats.ConflictsPending).Error; err != nil {
		return nil, err
	}

	entryCounts := []struct {
		statuses []models.EntryStatus
		dest     *int64
	}{
		{[]models.EntryStatus{models.EntryApplied}, &stats.EntriesApplied},
		{[]models.EntryStatus{models.EntryUnsynced, models.EntrySubmitted, models.EntryConflictPending}, &stats.EntriesPending},
		{[]models.EntryStatus{models.EntryFailed}, &stats.EntriesFailed},
	}
	for _, ec := range entryCounts {
		q := db.Model(&models.ProgressEntry{}).Where("status IN ?", ec.statuses)
		if deviceID != "" {
			q = q.Where("device_id = ?", deviceID)
		}
		if err := q.Count(ec.dest).Error; err != nil {
			return nil, err
		}
	}

	eq := db.Model(&models.CacheEntry{})
	if deviceID != "" {
		eq = eq.Where("device_id = ?", deviceID)
	}
	if err := eq.Count(&stats.CachedEntries).Error; err != nil {
		return nil, err
	}
	if deviceID != "" {
		bytes, err := db.CachedBytes(deviceID)
		if err != nil {
			return nil, err
		}
		stats.CachedBytes = bytes
	} else {
		var total *int64
		if err := db.Model(&models.CacheEntry{}).Select("SUM(size)").Scan(&total).Error; err != nil {
			return nil, err
		}
		if total != nil {
			stats.CachedBytes = *total
		}
	}

	return stats, nil
}
