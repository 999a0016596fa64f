// Package config handles application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Base directory for all FieldSync data (~/.fieldsync)
	BaseDir string

	// HTTP API settings
	Server ServerConfig

	// Sync engine tuning
	Sync SyncConfig
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	// Listen address for the sync API (default ":8743")
	Addr string
	// Static bearer token for device requests; empty disables enforcement
	AuthToken string
	// HMAC secret for JWT device tokens; empty falls back to AuthToken
	JWTSecret string
	// Allowed CORS origins
	AllowOrigins []string
}

// SyncConfig holds orchestrator and ledger tuning knobs.
type SyncConfig struct {
	// ItemAttempts is the per-item retry budget within one session.
	ItemAttempts int
	// RetryCeiling is the cross-session retry limit for ledger entries
	// before they are marked permanently failed.
	RetryCeiling int
	// FailureRatio is the fraction of failed items above which a session
	// terminates as failed instead of completed.
	FailureRatio float64
	// SessionWindow is the soft deadline for a single session.
	SessionWindow time.Duration
	// FetchRate limits content fetches per second per session.
	FetchRate float64
	// CompressThreshold is the payload size in bytes above which cached
	// payloads are stored gzip-compressed.
	CompressThreshold int
}

// Load loads configuration from defaults and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if dir := os.Getenv("FIELDSYNC_BASE_DIR"); dir != "" {
		cfg.BaseDir = dir
	}
	if addr := os.Getenv("FIELDSYNC_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if token := os.Getenv("FIELDSYNC_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if secret := os.Getenv("FIELDSYNC_JWT_SECRET"); secret != "" {
		cfg.Server.JWTSecret = secret
	}
	if v := os.Getenv("FIELDSYNC_RETRY_CEILING"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.RetryCeiling = n
		}
	}
	if v := os.Getenv("FIELDSYNC_FAILURE_RATIO"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Sync.FailureRatio = f
		}
	}
	if v := os.Getenv("FIELDSYNC_SESSION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Sync.SessionWindow = d
		}
	}

	// Ensure directories exist
	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureDirectories creates required directories if they don't exist.
func ensureDirectories(cfg *Config) error {
	dirs := []string{
		cfg.BaseDir,
		filepath.Join(cfg.BaseDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
