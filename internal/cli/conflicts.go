package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/conflict"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Review and resolve sync conflicts",
}

var (
	conflictsListDevice string
	resolveValue        string
	resolveReviewer     string
)

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts awaiting manual review",
	RunE:  runConflictsList,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a conflict with a chosen value",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictsResolve,
}

func init() {
	conflictsListCmd.Flags().StringVar(&conflictsListDevice, "device", "", "filter by device")
	conflictsResolveCmd.Flags().StringVar(&resolveValue, "value", "", "resolved value (JSON)")
	conflictsResolveCmd.Flags().StringVar(&resolveReviewer, "by", "", "reviewer identity")
	_ = conflictsResolveCmd.MarkFlagRequired("value")

	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
}

func runConflictsList(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("list", err)
	}
	defer h.close()

	pending, err := conflict.New(h.db, telemetryClient).ListPending(conflictsListDevice)
	if err != nil {
		return trackCLIError("list", err)
	}

	if len(pending) == 0 {
		fmt.Println("No conflicts awaiting review.")
		return nil
	}

	fmt.Printf("PENDING CONFLICTS (%d)\n", len(pending))
	fmt.Println("──────────────────────────────────────────────────")
	for _, c := range pending {
		fmt.Printf("  %s  %s/%s on %s (%s)\n", c.ID[:8], c.ContentType, c.ContentID, c.DeviceID, c.Type)
		fmt.Printf("    server: %s\n", truncate(string(c.ServerValue), 60))
		fmt.Printf("    client: %s\n", truncate(string(c.ClientValue), 60))
	}
	return nil
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("resolve", err)
	}
	defer h.close()

	resolved, err := conflict.New(h.db, telemetryClient).Resolve(args[0], []byte(resolveValue), resolveReviewer)
	if err != nil {
		return trackCLIError("resolve", err)
	}

	fmt.Printf("Resolved %s (%s/%s) by %s\n",
		resolved.ID, resolved.ContentType, resolved.ContentID, resolved.ResolvedBy)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
