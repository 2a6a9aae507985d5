package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/report"
)

func newDeviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Register, list, and deactivate devices",
	}
	cmd.AddCommand(newDeviceRegisterCmd())
	cmd.AddCommand(newDeviceListCmd())
	cmd.AddCommand(newDeviceDeactivateCmd())
	return cmd
}

func newDeviceRegisterCmd() *cobra.Command {
	var kind, platform string
	cmd := &cobra.Command{
		Use:   "register <user-id> <name>",
		Short: "Register a new active device for a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			d, err := eng.registry.Register(cmd.Context(), args[0], args[1], model.DeviceKind(kind), platform)
			if err != nil {
				return err
			}
			report.CreatePrintln(fmt.Sprintf("registered device %s (%s/%s) for user %s", d.DeviceID, d.Kind, d.Platform, d.UserID))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "device kind: DESKTOP, MOBILE, or WEB (defaults to DESKTOP)")
	cmd.Flags().StringVar(&platform, "platform", "", "device platform, e.g. macos, ios (defaults to unknown)")
	return cmd
}

func newDeviceListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's devices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			devices, err := eng.registry.List(cmd.Context(), args[0], activeOnly)
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Printf("%s\t%s\t%s/%s\tactive=%t\tlast_sync=%s\n",
					d.DeviceID, d.Name, d.Kind, d.Platform, d.Active, d.LastSyncAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active-only", false, "only list active devices")
	return cmd
}

func newDeviceDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <device-id>",
		Short: "Deactivate a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			if err := eng.registry.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			report.DeletePrintln(fmt.Sprintf("deactivated device %s", args[0]))
			return nil
		},
	}
}
