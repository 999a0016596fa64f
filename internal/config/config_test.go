package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEmpty(t, cfg.BaseDir)
	assert.Equal(t, ":8743", cfg.Server.Addr)
	assert.Equal(t, 3, cfg.Sync.ItemAttempts)
	assert.Equal(t, 3, cfg.Sync.RetryCeiling)
	assert.Equal(t, 0.5, cfg.Sync.FailureRatio)
	assert.Equal(t, 15*time.Minute, cfg.Sync.SessionWindow)
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FIELDSYNC_BASE_DIR", tmpDir)
	t.Setenv("FIELDSYNC_ADDR", ":9000")
	t.Setenv("FIELDSYNC_AUTH_TOKEN", "secret-token")
	t.Setenv("FIELDSYNC_RETRY_CEILING", "5")
	t.Setenv("FIELDSYNC_FAILURE_RATIO", "0.25")
	t.Setenv("FIELDSYNC_SESSION_WINDOW", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, tmpDir, cfg.BaseDir)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "secret-token", cfg.Server.AuthToken)
	assert.Equal(t, 5, cfg.Sync.RetryCeiling)
	assert.Equal(t, 0.25, cfg.Sync.FailureRatio)
	assert.Equal(t, 30*time.Minute, cfg.Sync.SessionWindow)
}

func TestLoad_IgnoresInvalidEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("FIELDSYNC_BASE_DIR", tmpDir)
	t.Setenv("FIELDSYNC_RETRY_CEILING", "not-a-number")
	t.Setenv("FIELDSYNC_FAILURE_RATIO", "2.5") // out of range

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Sync.RetryCeiling)
	assert.Equal(t, 0.5, cfg.Sync.FailureRatio)
}

func TestGetPaths(t *testing.T) {
	cfg := &Config{BaseDir: "/data/fieldsync"}
	paths := GetPaths(cfg)

	assert.Equal(t, "/data/fieldsync/fieldsync.db", paths.Database)
	assert.Equal(t, "/data/fieldsync/logs", paths.Logs)
}
