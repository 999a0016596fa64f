package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCachePriority_Ordering(t *testing.T) {
	assert.Less(t, int(PriorityLow), int(PriorityMedium))
	assert.Less(t, int(PriorityMedium), int(PriorityHigh))
	assert.Less(t, int(PriorityHigh), int(PriorityCritical))
}

func TestParseCachePriority(t *testing.T) {
	tests := []struct {
		name string
		want CachePriority
	}{
		{"low", PriorityLow},
		{"medium", PriorityMedium},
		{"high", PriorityHigh},
		{"critical", PriorityCritical},
		{"bogus", PriorityMedium},
		{"", PriorityMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCachePriority(tt.name))
			if tt.name == ParseCachePriority(tt.name).String() {
				assert.Equal(t, tt.name, tt.want.String())
			}
		})
	}
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()
	expiry := now.Add(-time.Hour)

	e := &CacheEntry{ExpiresAt: &expiry}
	assert.True(t, e.Expired(now))

	noExpiry := &CacheEntry{}
	assert.False(t, noExpiry.Expired(now))
}
