// Package model holds the data types shared across the sync engine:
// devices, vector clocks, sync events, and the conflicts/deltas derived
// from them. See pkg/vclock and pkg/delta for the algebra over these types.
package model

import (
	"time"

	"github.com/ettle/strcase"
)

// DeviceKind is the class of hardware a device represents.
type DeviceKind string

const (
	DeviceDesktop DeviceKind = "DESKTOP"
	DeviceMobile  DeviceKind = "MOBILE"
	DeviceWeb     DeviceKind = "WEB"
)

// Operation is the kind of mutation a SyncEvent records.
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// ResolutionStrategy names one of the three explicit conflict resolution
// strategies a caller may request.
type ResolutionStrategy string

const (
	StrategyLastWriteWins ResolutionStrategy = "LAST_WRITE_WINS"
	StrategyManual        ResolutionStrategy = "MANUAL"
	StrategyMerge         ResolutionStrategy = "MERGE"
)

// Device is a single client installation belonging to a user.
type Device struct {
	DeviceID   string     `json:"device_id"`
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	Kind       DeviceKind `json:"kind"`
	Platform   string     `json:"platform"`
	Active     bool       `json:"active"`
	LastSyncAt time.Time  `json:"last_sync_at"`
}

// CanonicalEntityType normalizes a caller-supplied entity type tag (e.g.
// "message", "Message", "MESSAGE_THREAD") to the stable PascalCase form
// used as the event-log and conflict bucketing key.
func CanonicalEntityType(raw string) string {
	return strcase.ToPascal(raw)
}

// SyncEvent is an append-only record of one device's mutation of one
// entity. Payload and VectorClock are immutable once inserted; only
// ConflictResolved/ResolutionStrategy may change, exactly once.
type SyncEvent struct {
	EventID             string             `json:"event_id"`
	DeviceID            string             `json:"device_id"`
	EntityType          string             `json:"entity_type"`
	EntityID            string             `json:"entity_id"`
	Operation           Operation          `json:"operation"`
	Payload             map[string]any     `json:"payload"`
	VectorClock         map[string]uint64  `json:"vector_clock"`
	SyncedAt            time.Time          `json:"synced_at"`
	ConflictResolved    bool               `json:"conflict_resolved"`
	ResolutionStrategy  ResolutionStrategy `json:"resolution_strategy,omitempty"`
}

// Conflict is a derived (never persisted) pairing of two concurrent,
// unresolved SyncEvents on the same entity.
type Conflict struct {
	ConflictID string      `json:"conflict_id"`
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Events     [2]SyncEvent `json:"events"`
	DetectedAt time.Time   `json:"detected_at"`
}

// PendingSync is what initiate_sync hands back to a device.
type PendingSync struct {
	PendingEvents []SyncEvent       `json:"pending_events"`
	CurrentClock  map[string]uint64 `json:"current_clock"`
}

// SyncStatus is the per-device health snapshot returned by sync_status.
type SyncStatus struct {
	DeviceID                       string            `json:"device_id"`
	LastSyncAt                     time.Time         `json:"last_sync_at"`
	PendingCount                   int               `json:"pending_count"`
	UnresolvedConflictsInvolvingIt int               `json:"unresolved_conflicts_involving_device"`
	Clock                          map[string]uint64 `json:"clock"`
	Healthy                        bool              `json:"healthy"`
}

// SyncStatistics aggregates device/event/conflict counts for a user.
type SyncStatistics struct {
	UserID              string    `json:"user_id"`
	TotalDevices        int       `json:"total_devices"`
	ActiveDevices       int       `json:"active_devices"`
	TotalEvents         int       `json:"total_events"`
	UnresolvedConflicts int       `json:"unresolved_conflicts"`
	LatestLastSyncAt    time.Time `json:"latest_last_sync_at"`
}

// BatchItemError reports one failed event within a batch_record call.
type BatchItemError struct {
	Index int    `json:"index"`
	Err   error  `json:"error"`
}

func (b BatchItemError) Error() string {
	return b.Err.Error()
}
