// Package ports declares the narrow interfaces the sync engine depends on
// (EventStore, DeviceStore, Clock, IdGen) so the host can wire any backing
// store without the core importing it. pkg/memstore is the in-process
// reference adapter used by tests and cmd/syncctl; a production host is
// expected to implement these against its relational store instead.
package ports

import (
	"context"
	"time"

	"github.com/relaythread/syncengine/pkg/model"
)

// EventStore is the append-only sync event log.
type EventStore interface {
	// Append assigns EventID and SyncedAt and persists the event
	// atomically.
	Append(ctx context.Context, e model.SyncEvent) (model.SyncEvent, error)
	// ByEntity returns every event for (entityType, entityID), ascending
	// by SyncedAt.
	ByEntity(ctx context.Context, entityType, entityID string) ([]model.SyncEvent, error)
	// ByDeviceSince returns events originated by deviceID with
	// SyncedAt > since, ascending.
	ByDeviceSince(ctx context.Context, deviceID string, since time.Time) ([]model.SyncEvent, error)
	// LatestByDevice returns the most recently appended event originated
	// by deviceID, or (model.SyncEvent{}, false, nil) if none exist.
	LatestByDevice(ctx context.Context, deviceID string) (model.SyncEvent, bool, error)
	// Get returns a single event by id.
	Get(ctx context.Context, eventID string) (model.SyncEvent, bool, error)
	// UnresolvedForUser returns every event with ConflictResolved == false
	// originated by any of deviceIDs (the caller passes userID's devices).
	UnresolvedForUser(ctx context.Context, userID string, deviceIDs []string) ([]model.SyncEvent, error)
	// MarkResolved atomically flips ConflictResolved and sets
	// ResolutionStrategy on every listed event id.
	MarkResolved(ctx context.Context, eventIDs []string, strategy model.ResolutionStrategy) error
	// DeleteResolvedBefore deletes resolved events older than before for
	// deviceID, returning the count removed. Maintenance only.
	DeleteResolvedBefore(ctx context.Context, deviceID string, before time.Time) (int, error)
	// CountForUser returns the total number of events across deviceIDs.
	CountForUser(ctx context.Context, deviceIDs []string) (int, error)
}

// DeviceStore is the device registry's backing store.
type DeviceStore interface {
	Insert(ctx context.Context, d model.Device) (model.Device, error)
	// FindByUserAndName returns every device (active or not) a user has
	// registered under name; the registry checks Active among the
	// results since uniqueness only binds active devices.
	FindByUserAndName(ctx context.Context, userID, name string) ([]model.Device, error)
	FindByID(ctx context.Context, deviceID string) (model.Device, bool, error)
	ListForUser(ctx context.Context, userID string, activeOnly bool) ([]model.Device, error)
	UpdateLastSync(ctx context.Context, deviceID string, t time.Time) error
	SetActive(ctx context.Context, deviceID string, active bool) error
}

// Clock abstracts wall-clock time so tests can inject a deterministic now().
type Clock interface {
	Now() time.Time
}

// IdGen generates collision-resistant opaque identifiers.
type IdGen interface {
	NewID() string
}
