package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/ledger"
)

var failedDevice string

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List permanently failed progress entries",
	Long: `List ledger entries that exhausted their retry budget.

These entries will never be retried automatically; they are kept for
operator attention rather than silently dropped.`,
	RunE: runFailed,
}

func init() {
	failedCmd.Flags().StringVar(&failedDevice, "device", "", "filter by device")
}

func runFailed(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("failed", err)
	}
	defer h.close()

	entries, err := ledger.New(h.db, telemetryClient, h.cfg.Sync.RetryCeiling).ListFailed(failedDevice)
	if err != nil {
		return trackCLIError("failed", err)
	}

	if len(entries) == 0 {
		fmt.Println("No permanently failed entries.")
		return nil
	}

	fmt.Printf("PERMANENTLY FAILED ENTRIES (%d)\n", len(entries))
	fmt.Println("──────────────────────────────────────────────────")
	for _, e := range entries {
		fmt.Printf("  %s  %s (%d retries)\n", e.ID, e.DeviceID, e.RetryCount)
		fmt.Printf("    recorded: %s\n", e.RecordedAt.Format("2006-01-02 15:04:05"))
		if e.LastError != "" {
			fmt.Printf("    error:    %s\n", truncate(e.LastError, 70))
		}
	}
	return nil
}
