package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),

		Server: ServerConfig{
			Addr:         ":8743",
			AllowOrigins: []string{"*"},
		},

		Sync: SyncConfig{
			ItemAttempts:      3,
			RetryCeiling:      3,
			FailureRatio:      0.5,
			SessionWindow:     15 * time.Minute,
			FetchRate:         20,
			CompressThreshold: 4 * 1024, // 4KB
		},
	}
}
