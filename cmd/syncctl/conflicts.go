package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/report"
)

func newConflictsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List and resolve unresolved conflicts",
	}
	cmd.AddCommand(newConflictsListCmd())
	cmd.AddCommand(newConflictsResolveCmd())
	return cmd
}

func newConflictsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <user-id>",
		Short: "List a user's unresolved conflicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			conflicts, err := eng.coord.GetUnresolvedConflicts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Println("no unresolved conflicts")
				return nil
			}
			for _, c := range conflicts {
				report.ConflictPrintln(fmt.Sprintf("%s: %s/%s between %s and %s",
					c.ConflictID, c.EntityType, c.EntityID, c.Events[0].DeviceID, c.Events[1].DeviceID))
				if diff, err := report.PayloadDiff(c.Events[0].Payload, c.Events[1].Payload); err == nil && diff != "" {
					fmt.Println(diff)
				}
			}
			return nil
		},
	}
}

func newConflictsResolveCmd() *cobra.Command {
	var resolutionJSON string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id> <LAST_WRITE_WINS|MANUAL|MERGE>",
		Short: "Resolve a conflict surfaced by conflicts list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := newEngine()
			if err != nil {
				return err
			}
			var resolution map[string]any
			if resolutionJSON != "" {
				if err := json.Unmarshal([]byte(resolutionJSON), &resolution); err != nil {
					return fmt.Errorf("parsing --resolution: %w", err)
				}
			}
			newEventID, err := eng.coord.ResolveConflict(cmd.Context(), args[0], model.ResolutionStrategy(args[1]), resolution)
			if err != nil {
				return err
			}
			report.ResolvedPrintln(fmt.Sprintf("conflict %s resolved -> new event %s", args[0], newEventID))
			return nil
		},
	}
	cmd.Flags().StringVar(&resolutionJSON, "resolution", "", "JSON payload to use verbatim for MANUAL resolution")
	return cmd
}
