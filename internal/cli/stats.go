package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsDevice string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync aggregates",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsDevice, "device", "", "scope to one device")
}

func runStats(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("stats", err)
	}
	defer h.close()

	stats, err := h.db.Stats(statsDevice)
	if err != nil {
		return trackCLIError("stats", err)
	}

	scope := "all devices"
	if statsDevice != "" {
		scope = statsDevice
	}
	fmt.Printf("SYNC STATS (%s)\n", scope)
	fmt.Println("──────────────────────────────────────────────────")
	fmt.Printf("  sessions:  %d total (%d completed, %d failed, %d conflict, %d cancelled)\n",
		stats.SessionsTotal, stats.SessionsCompleted, stats.SessionsFailed,
		stats.SessionsConflict, stats.SessionsCancelled)
	fmt.Printf("  conflicts: %d total, %d pending review\n",
		stats.ConflictsTotal, stats.ConflictsPending)
	fmt.Printf("  ledger:    %d applied, %d pending, %d permanently failed\n",
		stats.EntriesApplied, stats.EntriesPending, stats.EntriesFailed)
	fmt.Printf("  cache:     %d entries, %d bytes\n",
		stats.CachedEntries, stats.CachedBytes)
	return nil
}
