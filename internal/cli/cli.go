// Package cli provides the command-line interface for FieldSync.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/config"
	"github.com/asteroid-belt/fieldsync/internal/db"
	"github.com/asteroid-belt/fieldsync/internal/telemetry"
	"github.com/asteroid-belt/fieldsync/pkg/version"
)

var telemetryClient telemetry.Client

var commandStartTime time.Time

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "Offline-first sync engine for restaurant field devices",
	Long: `Offline-first sync engine for restaurant field devices.

Manages the device registry, per-device content caches, sync sessions,
conflict review and the offline progress ledger. Run 'fieldsync serve' to
expose the engine over HTTP.

Telemetry:
  Telemetry is enabled by default, always anonymous, and will never track
  personal information, custom/local data, or IP addresses.

  Opt-out with:
  	FIELDSYNC_TELEMETRY_TRACKING_ENABLED=false`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commandStartTime = time.Now()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if cmd.Name() != "fieldsync" {
			telemetryClient.Track("cli_command_executed", map[string]interface{}{
				"command":     cmd.Name(),
				"has_flags":   cmd.Flags().NFlag() > 0,
				"duration_ms": time.Since(commandStartTime).Milliseconds(),
			})
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(statsCmd)
}

// Execute runs the CLI with fang enhancements.
func Execute(ctx context.Context, tc telemetry.Client) error {
	if tc == nil {
		tc = telemetry.New(nil)
	}
	telemetryClient = tc

	return fang.Execute(
		ctx,
		rootCmd,
		fang.WithVersion(version.Short()),
		fang.WithCommit(version.Commit),
	)
}

// dbHandle bundles the loaded config with an open engine database.
type dbHandle struct {
	cfg *config.Config
	db  *db.DB
}

// open loads config and opens the engine database. Callers must close the
// returned handle.
func open() (dbHandle, error) {
	cfg, err := config.Load()
	if err != nil {
		return dbHandle{}, fmt.Errorf("load config: %w", err)
	}
	paths := config.GetPaths(cfg)
	database, err := db.New(db.DefaultConfig(paths.Database))
	if err != nil {
		return dbHandle{}, fmt.Errorf("initialize database: %w", err)
	}
	return dbHandle{cfg: cfg, db: database}, nil
}

func (h dbHandle) close() {
	_ = h.db.Close()
}

// trackCLIError wraps an error with telemetry tracking.
func trackCLIError(cmdName string, err error) error {
	if err == nil {
		return nil
	}
	telemetryClient.Track("cli_error", map[string]interface{}{
		"command":    cmdName,
		"error_type": classifyError(err),
	})
	return err
}

// classifyError determines the error type for telemetry.
func classifyError(err error) string {
	errStr := strings.ToLower(err.Error())
	switch {
	case containsAny(errStr, "config", "configuration"):
		return "config_error"
	case containsAny(errStr, "database", "db"):
		return "database_error"
	case containsAny(errStr, "network", "timeout", "connection"):
		return "network_error"
	case containsAny(errStr, "not found", "does not exist"):
		return "not_found_error"
	case containsAny(errStr, "invalid", "parse", "format"):
		return "validation_error"
	default:
		return "unknown_error"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
