package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaythread/syncengine/internal/config"
	"github.com/relaythread/syncengine/pkg/sync"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective engine configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config (defaults layered with --config and SYNCENGINE_* env vars)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			out, err := config.AsYAML(cfg)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}
