package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_Terminal(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   bool
	}{
		{SessionPending, false},
		{SessionInProgress, false},
		{SessionCompleted, true},
		{SessionFailed, true},
		{SessionConflict, true},
		{SessionCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Terminal())
		})
	}
}

func TestSyncDirection_Paths(t *testing.T) {
	assert.True(t, DirectionDownload.Downloads())
	assert.False(t, DirectionDownload.Uploads())
	assert.True(t, DirectionUpload.Uploads())
	assert.False(t, DirectionUpload.Downloads())
	assert.True(t, DirectionBidirectional.Downloads())
	assert.True(t, DirectionBidirectional.Uploads())
	assert.False(t, SyncDirection("sideways").Valid())
}

func TestSession_Scope(t *testing.T) {
	s := &SyncSession{ContentTypes: "module, assessment ,"}
	assert.Equal(t, []string{"module", "assessment"}, s.Scope())
	assert.True(t, s.InScope("module"))
	assert.False(t, s.InScope("certificate"))

	unbounded := &SyncSession{}
	assert.Nil(t, unbounded.Scope())
	assert.True(t, unbounded.InScope("anything"))
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := &SyncSession{WindowEnd: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(2*time.Minute)))

	noWindow := &SyncSession{}
	assert.False(t, noWindow.Expired(now))
}
