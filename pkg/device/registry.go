// Package device handles device registration, deactivation, listing, and
// the last-sync-timestamp mutator.
package device

import (
	"context"
	"time"

	"dario.cat/mergo"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/ports"
	"github.com/relaythread/syncengine/pkg/vclock"
)

const entityTypeDevice = "Device"

// defaults fills in a device's Kind/Platform with dario.cat/mergo: only
// zero-valued fields in the caller's partial record are filled.
var defaults = model.Device{
	Kind:     model.DeviceDesktop,
	Platform: "unknown",
}

// Registry is the device lifecycle manager.
type Registry struct {
	devices ports.DeviceStore
	events  ports.EventStore
	clock   ports.Clock
	idgen   ports.IdGen
}

func New(devices ports.DeviceStore, events ports.EventStore, clk ports.Clock, idgen ports.IdGen) *Registry {
	return &Registry{devices: devices, events: events, clock: clk, idgen: idgen}
}

// Register creates a new active device for userID, failing with
// DUPLICATE_DEVICE if an active device with the same name already exists.
// On success it emits a CREATE SyncEvent for entity_type="Device" with the
// initial clock {device_id: 0} so the device's existence is discoverable
// by peers during sync.
func (r *Registry) Register(ctx context.Context, userID, name string, kind model.DeviceKind, platform string) (model.Device, error) {
	existing, err := r.devices.FindByUserAndName(ctx, userID, name)
	if err != nil {
		return model.Device{}, model.Wrap(model.ErrStoreUnavailable, "looking up device by name", err)
	}
	for _, d := range existing {
		if d.Active {
			return model.Device{}, model.NewError(model.ErrDuplicateDevice,
				"an active device with this name already exists").WithDevice(d.DeviceID)
		}
	}

	partial := model.Device{Kind: kind, Platform: platform}
	if err := mergo.Merge(&partial, defaults); err != nil {
		return model.Device{}, model.Wrap(model.ErrValidation, "filling device defaults", err)
	}

	now := r.clock.Now()
	dev := model.Device{
		DeviceID:   r.idgen.NewID(),
		UserID:     userID,
		Name:       name,
		Kind:       partial.Kind,
		Platform:   partial.Platform,
		Active:     true,
		LastSyncAt: now,
	}

	saved, err := r.devices.Insert(ctx, dev)
	if err != nil {
		return model.Device{}, model.Wrap(model.ErrStoreUnavailable, "inserting device", err)
	}

	initialClock := vclock.Create(saved.DeviceID)
	_, err = r.events.Append(ctx, model.SyncEvent{
		DeviceID:    saved.DeviceID,
		EntityType:  entityTypeDevice,
		EntityID:    saved.DeviceID,
		Operation:   model.OpCreate,
		Payload:     map[string]any{"name": saved.Name, "kind": string(saved.Kind), "platform": saved.Platform},
		VectorClock: initialClock.ToModel(),
	})
	if err != nil {
		return model.Device{}, model.Wrap(model.ErrStoreUnavailable, "recording device creation", err)
	}

	return saved, nil
}

// Deactivate soft-deletes a device: it is never hard-deleted, so its id may
// still appear in historical vector clocks.
func (r *Registry) Deactivate(ctx context.Context, deviceID string) error {
	d, ok, err := r.devices.FindByID(ctx, deviceID)
	if err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "looking up device", err)
	}
	if !ok {
		return model.NewError(model.ErrDeviceNotFound, "device does not exist").WithDevice(deviceID)
	}

	if err := r.devices.SetActive(ctx, deviceID, false); err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "deactivating device", err)
	}

	latest := vclock.Create(deviceID)
	if e, ok, err := r.events.LatestByDevice(ctx, deviceID); err == nil && ok {
		latest = vclock.FromModel(e.VectorClock)
	}
	nextClock := vclock.Increment(latest, deviceID)

	_, err = r.events.Append(ctx, model.SyncEvent{
		DeviceID:    deviceID,
		EntityType:  entityTypeDevice,
		EntityID:    deviceID,
		Operation:   model.OpDelete,
		Payload:     map[string]any{"name": d.Name},
		VectorClock: nextClock.ToModel(),
	})
	if err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "recording device deactivation", err)
	}
	return nil
}

// List returns a user's devices ordered by last-sync time, most recent
// first.
func (r *Registry) List(ctx context.Context, userID string, activeOnly bool) ([]model.Device, error) {
	devices, err := r.devices.ListForUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, "listing devices", err)
	}
	return devices, nil
}

// TouchLastSync is the only mutator of Device.LastSyncAt. t is clamped to
// the device's current LastSyncAt if it would otherwise move backwards.
func (r *Registry) TouchLastSync(ctx context.Context, deviceID string, t time.Time) error {
	d, ok, err := r.devices.FindByID(ctx, deviceID)
	if err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "looking up device", err)
	}
	if !ok {
		return model.NewError(model.ErrDeviceNotFound, "device does not exist").WithDevice(deviceID)
	}
	if t.Before(d.LastSyncAt) {
		t = d.LastSyncAt
	}
	if err := r.devices.UpdateLastSync(ctx, deviceID, t); err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "updating last sync", err)
	}
	return nil
}

// Get returns a single device by id.
func (r *Registry) Get(ctx context.Context, deviceID string) (model.Device, error) {
	d, ok, err := r.devices.FindByID(ctx, deviceID)
	if err != nil {
		return model.Device{}, model.Wrap(model.ErrStoreUnavailable, "looking up device", err)
	}
	if !ok {
		return model.Device{}, model.NewError(model.ErrDeviceNotFound, "device does not exist").WithDevice(deviceID)
	}
	return d, nil
}
