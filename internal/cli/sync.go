package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/cache"
	"github.com/asteroid-belt/fieldsync/internal/conflict"
	"github.com/asteroid-belt/fieldsync/internal/ledger"
	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/registry"
	"github.com/asteroid-belt/fieldsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage sync sessions",
}

var (
	syncOpenDirection string
	syncOpenTypes     string
	syncOpenFull      bool
	syncOpenStrategy  string
	syncListDevice    string
	syncListLimit     int
)

var syncOpenCmd = &cobra.Command{
	Use:   "open <device-id>",
	Short: "Open a pending sync session for a device",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncOpen,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sync sessions",
	RunE:  runSyncList,
}

var syncShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one sync session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncShow,
}

var syncCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a pending or in-progress session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncCancel,
}

func init() {
	syncOpenCmd.Flags().StringVar(&syncOpenDirection, "direction", "bidirectional", "sync direction (download, upload, bidirectional)")
	syncOpenCmd.Flags().StringVar(&syncOpenTypes, "types", "", "comma-separated content type scope (empty = all)")
	syncOpenCmd.Flags().BoolVar(&syncOpenFull, "full", false, "full resync, ignoring cached versions")
	syncOpenCmd.Flags().StringVar(&syncOpenStrategy, "strategy", "", "conflict strategy (server-wins, client-wins, latest-timestamp, merge, manual-review)")
	syncListCmd.Flags().StringVar(&syncListDevice, "device", "", "filter by device")
	syncListCmd.Flags().IntVar(&syncListLimit, "limit", 20, "max sessions to show")

	syncCmd.AddCommand(syncOpenCmd)
	syncCmd.AddCommand(syncListCmd)
	syncCmd.AddCommand(syncShowCmd)
	syncCmd.AddCommand(syncCancelCmd)
}

func newSyncService(h dbHandle) *syncer.Service {
	reg := registry.New(h.db, telemetryClient)
	cacheSvc := cache.New(h.db, telemetryClient, h.cfg.Sync.CompressThreshold)
	conflictSvc := conflict.New(h.db, telemetryClient)
	ledgerSvc := ledger.New(h.db, telemetryClient, h.cfg.Sync.RetryCeiling)
	return syncer.New(h.db, reg, cacheSvc, conflictSvc, ledgerSvc, telemetryClient, h.cfg.Sync)
}

func runSyncOpen(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("open", err)
	}
	defer h.close()

	var scope []string
	if strings.TrimSpace(syncOpenTypes) != "" {
		scope = strings.Split(syncOpenTypes, ",")
	}

	session, err := newSyncService(h).Open(syncer.OpenInput{
		DeviceID:     args[0],
		Direction:    models.SyncDirection(syncOpenDirection),
		ContentTypes: scope,
		FullResync:   syncOpenFull,
		Strategy:     models.ResolutionStrategy(syncOpenStrategy),
	})
	if err != nil {
		return trackCLIError("open", err)
	}

	fmt.Printf("Opened session %s for %s (%s, window until %s)\n",
		session.ID, session.DeviceID, session.Direction,
		session.WindowEnd.Format("15:04:05"))
	return nil
}

func runSyncList(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("list", err)
	}
	defer h.close()

	sessions, err := newSyncService(h).List(syncListDevice, syncListLimit)
	if err != nil {
		return trackCLIError("list", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sync sessions recorded.")
		return nil
	}

	fmt.Printf("SESSIONS (%d)\n", len(sessions))
	fmt.Println("──────────────────────────────────────────────────")
	for _, s := range sessions {
		fmt.Printf("  %s  %s  %s (%s)\n", s.ID[:8], s.DeviceID, s.Status, s.Direction)
		fmt.Printf("    %d/%d items, %d failed, %d conflicts pending\n",
			s.SuccessfulItems, s.ProcessedItems, s.FailedItems, s.ConflictsPending)
	}
	return nil
}

func runSyncShow(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("show", err)
	}
	defer h.close()

	s, err := newSyncService(h).Get(args[0])
	if err != nil {
		return trackCLIError("show", err)
	}

	fmt.Printf("Session %s\n", s.ID)
	fmt.Printf("  device:    %s\n", s.DeviceID)
	fmt.Printf("  direction: %s\n", s.Direction)
	fmt.Printf("  status:    %s\n", s.Status)
	fmt.Printf("  strategy:  %s\n", s.Strategy)
	fmt.Printf("  items:     %d total, %d processed, %d ok, %d failed, %d skipped\n",
		s.TotalItems, s.ProcessedItems, s.SuccessfulItems, s.FailedItems, s.SkippedItems)
	fmt.Printf("  conflicts: %d detected, %d resolved, %d pending\n",
		s.ConflictsDetected, s.ConflictsResolved, s.ConflictsPending)
	fmt.Printf("  bytes:     %d\n", s.BytesMoved)
	if s.ErrorMessage != "" {
		fmt.Printf("  error:     %s\n", s.ErrorMessage)
	}
	return nil
}

func runSyncCancel(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("cancel", err)
	}
	defer h.close()

	session, err := newSyncService(h).Cancel(args[0])
	if err != nil {
		return trackCLIError("cancel", err)
	}
	fmt.Printf("Session %s is %s\n", session.ID, session.Status)
	return nil
}
