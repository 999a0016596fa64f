package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/fieldsync/internal/models"
	"github.com/asteroid-belt/fieldsync/internal/registry"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device registry",
}

var (
	registerDeviceType    string
	registerTenantID      string
	registerCapacity      int64
	registerDeltaSync     bool
	registerSyncInterval  int
	devicesListActiveOnly bool
)

var devicesRegisterCmd = &cobra.Command{
	Use:   "register <device-id>",
	Short: "Register a device (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesRegister,
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known devices",
	RunE:  runDevicesList,
}

var devicesDeactivateCmd = &cobra.Command{
	Use:   "deactivate <device-id>",
	Short: "Deactivate a device and cancel its open sessions",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesDeactivate,
}

func init() {
	devicesRegisterCmd.Flags().StringVar(&registerDeviceType, "type", "tablet", "device type (tablet, kiosk, phone, desktop)")
	devicesRegisterCmd.Flags().StringVar(&registerTenantID, "tenant", "", "tenant the device belongs to")
	devicesRegisterCmd.Flags().Int64Var(&registerCapacity, "capacity", 512<<20, "cache storage budget in bytes")
	devicesRegisterCmd.Flags().BoolVar(&registerDeltaSync, "delta", false, "device supports delta sync")
	devicesRegisterCmd.Flags().IntVar(&registerSyncInterval, "interval", 0, "sync interval in minutes")
	devicesListCmd.Flags().BoolVar(&devicesListActiveOnly, "active", false, "show only active devices")

	devicesCmd.AddCommand(devicesRegisterCmd)
	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesDeactivateCmd)
}

func runDevicesRegister(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("register", err)
	}
	defer h.close()

	reg := registry.New(h.db, telemetryClient)
	device, err := reg.Register(registry.RegisterInput{
		DeviceID: args[0],
		TenantID: registerTenantID,
		Type:     models.DeviceType(registerDeviceType),
		Capabilities: models.DeviceCapabilities{
			StorageCapacity: registerCapacity,
			DeltaSync:       registerDeltaSync,
		},
		SyncInterval: registerSyncInterval,
	})
	if err != nil {
		return trackCLIError("register", err)
	}

	fmt.Printf("Registered %s (%s, %d MB cache budget)\n",
		device.ID, device.Type, device.StorageCapacity>>20)
	return nil
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("list", err)
	}
	defer h.close()

	reg := registry.New(h.db, telemetryClient)
	devices, err := reg.List(devicesListActiveOnly)
	if err != nil {
		return trackCLIError("list", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices registered.")
		fmt.Println("\nUse 'fieldsync devices register <device-id>' to register one.")
		return nil
	}

	fmt.Printf("DEVICES (%d)\n", len(devices))
	fmt.Println("──────────────────────────────────────────────────")
	for _, d := range devices {
		state := "active"
		if !d.Active {
			state = "inactive"
		}
		lastSeen := "never"
		if d.LastSeenAt != nil && !d.LastSeenAt.IsZero() {
			lastSeen = formatTimeSince(*d.LastSeenAt)
		}
		fmt.Printf("  %s  %s (%s)\n", d.ID, d.Type, state)
		fmt.Printf("    cache budget: %d MB, last seen: %s\n", d.StorageCapacity>>20, lastSeen)
	}
	return nil
}

func runDevicesDeactivate(cmd *cobra.Command, args []string) error {
	h, err := open()
	if err != nil {
		return trackCLIError("deactivate", err)
	}
	defer h.close()

	reg := registry.New(h.db, telemetryClient)
	if err := reg.Deactivate(args[0]); err != nil {
		return trackCLIError("deactivate", err)
	}
	fmt.Printf("Deactivated %s\n", args[0])
	return nil
}

// formatTimeSince formats a duration since a time in a human-readable way.
func formatTimeSince(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02")
	}
}
