package report

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/relaythread/syncengine/pkg/model"
)

// previewFields are checked, in order, for a short label to show next to an
// event whose payload has no fixed schema (the engine treats payload as
// arbitrary JSON, so this is best-effort).
var previewFields = []string{"title", "name", "content", "text"}

// Preview extracts a short human label from an arbitrary payload without
// requiring a fixed schema, using gjson to probe a short list of common
// field names. Values longer than 40 bytes are truncated with "..."; a
// payload with none of those fields yields "".
func Preview(payload map[string]any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	for _, field := range previewFields {
		if v := gjson.GetBytes(raw, field); v.Exists() {
			s := v.String()
			if len(s) > 40 {
				s = s[:37] + "..."
			}
			return s
		}
	}
	return ""
}

// Event prints a single-line summary of a SyncEvent, colored by operation.
func Event(e model.SyncEvent) {
	line := fmt.Sprintf("%s %s/%s via %s", e.Operation, e.EntityType, e.EntityID, e.DeviceID)
	if p := Preview(e.Payload); p != "" {
		line = fmt.Sprintf("%s %q", line, p)
	}
	switch e.Operation {
	case model.OpCreate:
		CreatePrintln(line)
	case model.OpUpdate:
		UpdatePrintln(line)
	case model.OpDelete:
		DeletePrintln(line)
	default:
		UpdatePrintln(line)
	}
}

// ConflictDetected prints a one-line notice that two events collided.
func ConflictDetected(c model.Conflict) {
	ConflictPrintln(fmt.Sprintf("conflict %s on %s/%s: %s vs %s",
		c.ConflictID, c.EntityType, c.EntityID, c.Events[0].EventID, c.Events[1].EventID))
}

// ConflictResolved prints a one-line notice that a conflict was resolved.
func ConflictResolved(conflictID string, strategy model.ResolutionStrategy, newEventID string) {
	ResolvedPrintln(fmt.Sprintf("resolved %s via %s -> %s", conflictID, strategy, newEventID))
}
