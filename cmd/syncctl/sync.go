package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect sync state for a device or user",
	}
	cmd.AddCommand(newSyncStatusCmd())
	cmd.AddCommand(newSyncStatisticsCmd())
	return cmd
}

func newSyncStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <device-id>",
		Short: "Show a device's sync health snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			status, err := eng.coord.SyncStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("device:    %s\n", status.DeviceID)
			fmt.Printf("healthy:   %t\n", status.Healthy)
			fmt.Printf("pending:   %d\n", status.PendingCount)
			fmt.Printf("conflicts: %d\n", status.UnresolvedConflictsInvolvingIt)
			fmt.Printf("clock:     %v\n", status.Clock)
			fmt.Printf("last_sync: %s\n", status.LastSyncAt.Format("2006-01-02T15:04:05"))
			return nil
		},
	}
}

func newSyncStatisticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show aggregate device/event/conflict counts for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			stats, err := eng.coord.Statistics(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("user:                %s\n", stats.UserID)
			fmt.Printf("total_devices:       %d\n", stats.TotalDevices)
			fmt.Printf("active_devices:      %d\n", stats.ActiveDevices)
			fmt.Printf("total_events:        %d\n", stats.TotalEvents)
			fmt.Printf("unresolved_conflicts: %d\n", stats.UnresolvedConflicts)
			return nil
		},
	}
}
