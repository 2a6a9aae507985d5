package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/report"
	"github.com/relaythread/syncengine/pkg/sync"
)

// newDemoCmd replays a small two-device sync session end to end: register,
// diverge, detect the conflict, resolve it with MERGE, and print the
// desktop's sync status. Useful for exercising the engine without a persistent
// store, and as a smoke test a new operator can read top to bottom.
func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Replay a scripted two-device sync session against a fresh in-memory engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := newEngine()
			if err != nil {
				return err
			}

			desktop, err := eng.registry.Register(ctx, "demo-user", "desktop", model.DeviceDesktop, "macos")
			if err != nil {
				return err
			}
			report.CreatePrintln(fmt.Sprintf("registered %s (desktop)", desktop.DeviceID))

			phone, err := eng.registry.Register(ctx, "demo-user", "phone", model.DeviceMobile, "ios")
			if err != nil {
				return err
			}
			report.CreatePrintln(fmt.Sprintf("registered %s (phone)", phone.DeviceID))

			created, err := eng.coord.RecordEvent(ctx, sync.RecordEventInput{
				DeviceID: desktop.DeviceID, EntityType: "Note", EntityID: "n1",
				Operation: model.OpCreate, Payload: map[string]any{"title": "groceries", "tags": []any{"home"}},
				VectorClock: map[string]uint64{desktop.DeviceID: 1},
			})
			if err != nil {
				return err
			}
			report.Event(created)

			desktopEdit, err := eng.coord.RecordEvent(ctx, sync.RecordEventInput{
				DeviceID: desktop.DeviceID, EntityType: "Note", EntityID: "n1",
				Operation: model.OpUpdate, Payload: map[string]any{"title": "groceries for the weekend", "tags": []any{"home"}},
				VectorClock: map[string]uint64{desktop.DeviceID: 2},
			})
			if err != nil {
				return err
			}
			report.Event(desktopEdit)

			phoneEdit, err := eng.coord.RecordEvent(ctx, sync.RecordEventInput{
				DeviceID: phone.DeviceID, EntityType: "Note", EntityID: "n1",
				Operation: model.OpUpdate, Payload: map[string]any{"title": "groceries", "tags": []any{"home", "urgent"}},
				VectorClock: map[string]uint64{desktop.DeviceID: 1, phone.DeviceID: 1},
			})
			if err != nil {
				return err
			}
			report.Event(phoneEdit)

			conflicts, err := eng.coord.GetUnresolvedConflicts(ctx, "demo-user")
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				report.WarnPrintlnStdErr("expected a conflict on Note/n1 but found none")
				return nil
			}
			c := conflicts[0]
			report.ConflictDetected(c)
			if diff, err := report.PayloadDiff(c.Events[0].Payload, c.Events[1].Payload); err == nil && diff != "" {
				fmt.Println(diff)
			}

			newEventID, err := eng.coord.ResolveConflict(ctx, c.ConflictID, model.StrategyMerge, nil)
			if err != nil {
				return err
			}
			report.ConflictResolved(c.ConflictID, model.StrategyMerge, newEventID)

			status, err := eng.coord.SyncStatus(ctx, desktop.DeviceID)
			if err != nil {
				return err
			}
			fmt.Printf("desktop healthy=%t pending=%d conflicts=%d\n", status.Healthy, status.PendingCount, status.UnresolvedConflictsInvolvingIt)
			return nil
		},
	}
}
