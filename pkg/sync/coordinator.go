// Package sync implements the sync coordinator: the stable,
// transport-agnostic API the host exposes to devices. It ties the device
// registry, the event store and the conflict detector/resolver together
// behind one API; the packages below it stay narrow, independently
// testable layers.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/relaythread/syncengine/pkg/conflict"
	"github.com/relaythread/syncengine/pkg/device"
	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/ports"
	"github.com/relaythread/syncengine/pkg/report"
	"github.com/relaythread/syncengine/pkg/vclock"
)

// Config holds the engine's three tunables; internal/config fills it from
// an optional config file and SYNCENGINE_* environment variables, layered
// over DefaultConfig.
type Config struct {
	MaxEventAgeResolved time.Duration
	HealthySyncWindow   time.Duration
	BatchSize           int
}

func DefaultConfig() Config {
	return Config{
		MaxEventAgeResolved: 30 * 24 * time.Hour,
		HealthySyncWindow:   time.Hour,
		BatchSize:           100,
	}
}

// RecordEventInput is one item of a batch_record call.
type RecordEventInput struct {
	DeviceID    string
	EntityType  string
	EntityID    string
	Operation   model.Operation
	Payload     map[string]any
	VectorClock map[string]uint64
}

// Coordinator owns no storage itself: every mutation goes through the
// injected ports.EventStore/ports.DeviceStore, with the coordinator
// responsible for validation, conflict scanning, and the per-device
// ordering guarantee.
type Coordinator struct {
	registry *device.Registry
	events   ports.EventStore
	clock    ports.Clock
	idgen    ports.IdGen
	detector *conflict.Detector
	cfg      Config

	// Schemas, keyed by canonical entity type, optionally validate
	// record_event payloads. A nil or missing entry skips validation.
	Schemas map[string]*gojsonschema.Schema

	deviceLocksMu sync.Mutex
	deviceLocks   map[string]*sync.Mutex

	conflictMu    sync.Mutex
	conflictCache map[string][2]string
}

func New(registry *device.Registry, events ports.EventStore, clk ports.Clock, idgen ports.IdGen, cfg Config) *Coordinator {
	return &Coordinator{
		registry:      registry,
		events:        events,
		clock:         clk,
		idgen:         idgen,
		detector:      conflict.NewDetector(clk),
		cfg:           cfg,
		deviceLocks:   make(map[string]*sync.Mutex),
		conflictCache: make(map[string][2]string),
	}
}

func (c *Coordinator) lockFor(deviceID string) *sync.Mutex {
	c.deviceLocksMu.Lock()
	defer c.deviceLocksMu.Unlock()
	l, ok := c.deviceLocks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		c.deviceLocks[deviceID] = l
	}
	return l
}

// withRetry wraps a store mutation with a bounded exponential-backoff retry
// policy (3 retries), so a transient STORE_UNAVAILABLE failure doesn't fail
// the whole call.
func (c *Coordinator) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return model.Wrap(model.ErrStoreUnavailable, "store operation failed after retries", err)
	}
	return nil
}

// RegisterDevice delegates to the device registry.
func (c *Coordinator) RegisterDevice(ctx context.Context, userID, name string, kind model.DeviceKind, platform string) (model.Device, error) {
	return c.registry.Register(ctx, userID, name, kind, platform)
}

// DeactivateDevice delegates to the device registry.
func (c *Coordinator) DeactivateDevice(ctx context.Context, deviceID string) error {
	return c.registry.Deactivate(ctx, deviceID)
}

// InitiateSync returns the events a device has not yet acknowledged and its
// current clock, observed as a point-in-time snapshot.
func (c *Coordinator) InitiateSync(ctx context.Context, deviceID string) (model.PendingSync, error) {
	d, err := c.registry.Get(ctx, deviceID)
	if err != nil {
		return model.PendingSync{}, err
	}
	if !d.Active {
		return model.PendingSync{}, model.NewError(model.ErrDeviceInactive, "device is not active").WithDevice(deviceID)
	}

	current := vclock.Create(deviceID)
	if latest, ok, err := c.events.LatestByDevice(ctx, deviceID); err != nil {
		return model.PendingSync{}, model.Wrap(model.ErrStoreUnavailable, "loading latest device event", err)
	} else if ok {
		current = vclock.FromModel(latest.VectorClock)
	}

	pending, err := c.events.ByDeviceSince(ctx, deviceID, d.LastSyncAt)
	if err != nil {
		return model.PendingSync{}, model.Wrap(model.ErrStoreUnavailable, "loading pending events", err)
	}

	return model.PendingSync{PendingEvents: pending, CurrentClock: current.ToModel()}, nil
}

// CompleteSync acknowledges delivery up to syncedUpTo; touch_last_sync
// enforces the monotonic clamp.
func (c *Coordinator) CompleteSync(ctx context.Context, deviceID string, syncedUpTo time.Time) error {
	return c.registry.TouchLastSync(ctx, deviceID, syncedUpTo)
}

// RecordEvent validates and appends a single event, then scans only its
// entity for new conflicts. Conflict-scan failures are logged, not
// returned: the event is already durably recorded.
func (c *Coordinator) RecordEvent(ctx context.Context, in RecordEventInput) (model.SyncEvent, error) {
	lock := c.lockFor(in.DeviceID)
	lock.Lock()
	defer lock.Unlock()

	d, err := c.registry.Get(ctx, in.DeviceID)
	if err != nil {
		return model.SyncEvent{}, err
	}
	if !d.Active {
		return model.SyncEvent{}, model.NewError(model.ErrDeviceInactive, "device is not active").WithDevice(in.DeviceID)
	}

	entityType := model.CanonicalEntityType(in.EntityType)
	if err := c.validatePayload(entityType, in.Payload); err != nil {
		return model.SyncEvent{}, err
	}

	next := vclock.FromModel(in.VectorClock)
	if !vclock.Valid(next) {
		return model.SyncEvent{}, model.NewError(model.ErrInvalidVectorClock, "malformed vector clock").WithDevice(in.DeviceID)
	}

	prior := vclock.Create(in.DeviceID)
	if latest, ok, err := c.events.LatestByDevice(ctx, in.DeviceID); err != nil {
		return model.SyncEvent{}, model.Wrap(model.ErrStoreUnavailable, "loading latest device event", err)
	} else if ok {
		prior = vclock.FromModel(latest.VectorClock)
	}
	if next[in.DeviceID] < prior[in.DeviceID] {
		return model.SyncEvent{}, model.NewError(model.ErrStaleDeviceCounter, "device counter moved backwards").WithDevice(in.DeviceID)
	}

	var saved model.SyncEvent
	err = c.withRetry(ctx, func() error {
		var appendErr error
		saved, appendErr = c.events.Append(ctx, model.SyncEvent{
			DeviceID:    in.DeviceID,
			EntityType:  entityType,
			EntityID:    in.EntityID,
			Operation:   in.Operation,
			Payload:     in.Payload,
			VectorClock: next.ToModel(),
		})
		return appendErr
	})
	if err != nil {
		return model.SyncEvent{}, err
	}

	if _, scanErr := c.detector.DetectForEntity(ctx, c.events, entityType, in.EntityID); scanErr != nil {
		report.WarnPrintlnStdErr(fmt.Sprintf("record_event: conflict scan failed for %s/%s: %v", entityType, in.EntityID, scanErr))
	}

	return saved, nil
}

func (c *Coordinator) validatePayload(entityType string, payload map[string]any) error {
	schema, ok := c.Schemas[entityType]
	if !ok || schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return model.Wrap(model.ErrValidation, "schema validation errored", err)
	}
	if !result.Valid() {
		return model.NewError(model.ErrValidation, fmt.Sprintf("payload failed schema for %s", entityType))
	}
	return nil
}

// BatchRecord processes items in chunks of cfg.BatchSize, preserving the
// per-item outcome: previously committed items within earlier chunks stay
// committed even if a later chunk has failures.
func (c *Coordinator) BatchRecord(ctx context.Context, items []RecordEventInput) ([]string, []model.BatchItemError) {
	savedIDs := make([]string, len(items))
	var errsMu sync.Mutex
	var errs []model.BatchItemError

	for start := 0; start < len(items); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(16)
		for i, item := range chunk {
			idx := start + i
			item := item
			g.Go(func() error {
				saved, err := c.RecordEvent(gctx, item)
				if err != nil {
					errsMu.Lock()
					errs = append(errs, model.BatchItemError{Index: idx, Err: err})
					errsMu.Unlock()
					return nil
				}
				savedIDs[idx] = saved.EventID
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(errs) > 0 {
		var combined error
		for _, e := range errs {
			combined = multierr.Append(combined, e.Err)
		}
		report.WarnPrintlnStdErr(fmt.Sprintf("batch_record: %d of %d events failed: %v", len(errs), len(items), combined))
	}

	return savedIDs, errs
}

// GetUnresolvedConflicts scans every unresolved event across a user's
// devices and assigns each surfaced conflict a surrogate id, cached for the
// matching resolve_conflict call. Conflicts are derived, never persisted;
// the cache is this process's only record of the id.
func (c *Coordinator) GetUnresolvedConflicts(ctx context.Context, userID string) ([]model.Conflict, error) {
	devices, err := c.registry.List(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	deviceIDs := make([]string, len(devices))
	for i, d := range devices {
		deviceIDs[i] = d.DeviceID
	}

	unresolved, err := c.events.UnresolvedForUser(ctx, userID, deviceIDs)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, "loading unresolved events", err)
	}

	conflicts := c.detector.Detect(unresolved)

	c.conflictMu.Lock()
	defer c.conflictMu.Unlock()
	out := make([]model.Conflict, len(conflicts))
	for i, cf := range conflicts {
		surrogate := c.idgen.NewID()
		c.conflictCache[surrogate] = [2]string{cf.Events[0].EventID, cf.Events[1].EventID}
		cf.ConflictID = surrogate
		out[i] = cf
	}
	return out, nil
}

// ResolveConflict looks up the conflict_id surfaced by a prior
// GetUnresolvedConflicts call, marks both events resolved and appends the
// resolution event. The two are separate store calls, each retried by
// withRetry; they do not share a transaction, so if the append still fails
// after its retries the two events stay marked resolved with no resolution
// event recorded.
func (c *Coordinator) ResolveConflict(ctx context.Context, conflictID string, strategy model.ResolutionStrategy, resolution map[string]any) (string, error) {
	c.conflictMu.Lock()
	ids, ok := c.conflictCache[conflictID]
	if ok {
		delete(c.conflictCache, conflictID)
	}
	c.conflictMu.Unlock()
	if !ok {
		return "", model.NewError(model.ErrConflictNotFound, "unknown or already-consumed conflict id")
	}

	e1, ok1, err := c.events.Get(ctx, ids[0])
	if err != nil {
		return "", model.Wrap(model.ErrStoreUnavailable, "loading conflict event", err)
	}
	e2, ok2, err := c.events.Get(ctx, ids[1])
	if err != nil {
		return "", model.Wrap(model.ErrStoreUnavailable, "loading conflict event", err)
	}
	if !ok1 || !ok2 {
		return "", model.NewError(model.ErrConflictNotFound, "one of the conflicting events no longer exists")
	}

	entityEvents, err := c.events.ByEntity(ctx, e1.EntityType, e1.EntityID)
	if err != nil {
		return "", model.Wrap(model.ErrStoreUnavailable, "loading entity history", err)
	}
	baseEvent := conflict.FindBase(entityEvents, e1, e2)

	resolved, err := conflict.Resolve(e1, e2, baseEvent, strategy, resolution)
	if err != nil {
		return "", err
	}

	if err := c.withRetry(ctx, func() error {
		return c.events.MarkResolved(ctx, []string{e1.EventID, e2.EventID}, strategy)
	}); err != nil {
		return "", err
	}

	var saved model.SyncEvent
	if err := c.withRetry(ctx, func() error {
		var appendErr error
		saved, appendErr = c.events.Append(ctx, resolved)
		return appendErr
	}); err != nil {
		return "", err
	}

	return saved.EventID, nil
}

// SyncStatus reports one device's health snapshot.
func (c *Coordinator) SyncStatus(ctx context.Context, deviceID string) (model.SyncStatus, error) {
	d, err := c.registry.Get(ctx, deviceID)
	if err != nil {
		return model.SyncStatus{}, err
	}

	current := vclock.Create(deviceID)
	if latest, ok, err := c.events.LatestByDevice(ctx, deviceID); err != nil {
		return model.SyncStatus{}, model.Wrap(model.ErrStoreUnavailable, "loading latest device event", err)
	} else if ok {
		current = vclock.FromModel(latest.VectorClock)
	}

	pending, err := c.events.ByDeviceSince(ctx, deviceID, d.LastSyncAt)
	if err != nil {
		return model.SyncStatus{}, model.Wrap(model.ErrStoreUnavailable, "loading pending events", err)
	}

	siblings, err := c.registry.List(ctx, d.UserID, false)
	if err != nil {
		return model.SyncStatus{}, err
	}
	siblingIDs := make([]string, len(siblings))
	for i, s := range siblings {
		siblingIDs[i] = s.DeviceID
	}
	unresolved, err := c.events.UnresolvedForUser(ctx, d.UserID, siblingIDs)
	if err != nil {
		return model.SyncStatus{}, model.Wrap(model.ErrStoreUnavailable, "loading unresolved events", err)
	}
	involving := 0
	for _, cf := range c.detector.Detect(unresolved) {
		if cf.Events[0].DeviceID == deviceID || cf.Events[1].DeviceID == deviceID {
			involving++
		}
	}

	healthy := d.Active && involving == 0 && c.clock.Now().Sub(d.LastSyncAt) <= c.cfg.HealthySyncWindow

	return model.SyncStatus{
		DeviceID:                       deviceID,
		LastSyncAt:                     d.LastSyncAt,
		PendingCount:                   len(pending),
		UnresolvedConflictsInvolvingIt: involving,
		Clock:                          current.ToModel(),
		Healthy:                        healthy,
	}, nil
}

// Statistics aggregates device/event/conflict counts for a user.
func (c *Coordinator) Statistics(ctx context.Context, userID string) (model.SyncStatistics, error) {
	devices, err := c.registry.List(ctx, userID, false)
	if err != nil {
		return model.SyncStatistics{}, err
	}
	deviceIDs := make([]string, len(devices))
	active := 0
	var latestSync time.Time
	for i, d := range devices {
		deviceIDs[i] = d.DeviceID
		if d.Active {
			active++
		}
		if d.LastSyncAt.After(latestSync) {
			latestSync = d.LastSyncAt
		}
	}

	total, err := c.events.CountForUser(ctx, deviceIDs)
	if err != nil {
		return model.SyncStatistics{}, model.Wrap(model.ErrStoreUnavailable, "counting events", err)
	}

	unresolved, err := c.events.UnresolvedForUser(ctx, userID, deviceIDs)
	if err != nil {
		return model.SyncStatistics{}, model.Wrap(model.ErrStoreUnavailable, "loading unresolved events", err)
	}

	return model.SyncStatistics{
		UserID:              userID,
		TotalDevices:        len(devices),
		ActiveDevices:       active,
		TotalEvents:         total,
		UnresolvedConflicts: len(c.detector.Detect(unresolved)),
		LatestLastSyncAt:    latestSync,
	}, nil
}

// RunMaintenance deletes resolved events older than cfg.MaxEventAgeResolved
// for each given device. Failures are logged and swallowed, matching the
// spec's maintenance error policy; it is meant to be invoked periodically
// by an external scheduler, not by the coordinator itself.
func (c *Coordinator) RunMaintenance(ctx context.Context, deviceIDs []string) {
	cutoff := c.clock.Now().Add(-c.cfg.MaxEventAgeResolved)
	for _, id := range deviceIDs {
		if _, err := c.events.DeleteResolvedBefore(ctx, id, cutoff); err != nil {
			report.WarnPrintlnStdErr(fmt.Sprintf("maintenance: delete_resolved_before failed for device %s: %v", id, err))
		}
	}
}
