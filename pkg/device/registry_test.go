package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaythread/syncengine/pkg/clock"
	"github.com/relaythread/syncengine/pkg/device"
	"github.com/relaythread/syncengine/pkg/idgen"
	"github.com/relaythread/syncengine/pkg/memstore"
	"github.com/relaythread/syncengine/pkg/model"
)

func newRegistry(t *testing.T, now time.Time) (*device.Registry, *memstore.Store) {
	t.Helper()
	s, err := memstore.New(&idgen.Sequential{Prefix: "evt"}, clock.Fixed{T: now})
	require.NoError(t, err)
	reg := device.New(s, s, clock.Fixed{T: now}, &idgen.Sequential{Prefix: "dev"})
	return reg, s
}

func TestRegisterCreatesActiveDeviceAndEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg, s := newRegistry(t, now)

	d, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "macos")
	require.NoError(t, err)
	assert.True(t, d.Active)
	assert.Equal(t, "macos", d.Platform)

	latest, ok, err := s.LatestByDevice(ctx, d.DeviceID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.OpCreate, latest.Operation)
	assert.Equal(t, map[string]uint64{d.DeviceID: 0}, latest.VectorClock)
}

func TestRegisterFillsDefaults(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, time.Now())

	d, err := reg.Register(ctx, "u1", "mystery", "", "")
	require.NoError(t, err)
	assert.Equal(t, model.DeviceDesktop, d.Kind)
	assert.Equal(t, "unknown", d.Platform)
}

func TestRegisterRejectsDuplicateActiveName(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, time.Now())

	_, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "macos")
	require.NoError(t, err)

	_, err = reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "windows")
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.ErrDuplicateDevice, merr.Code)
}

func TestRegisterAllowsNameReuseAfterDeactivation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, time.Now())

	first, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "macos")
	require.NoError(t, err)
	require.NoError(t, reg.Deactivate(ctx, first.DeviceID))

	second, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "windows")
	require.NoError(t, err)
	assert.NotEqual(t, first.DeviceID, second.DeviceID)
}

func TestDeactivateIncrementsClockAndEmitsDelete(t *testing.T) {
	ctx := context.Background()
	reg, s := newRegistry(t, time.Now())

	d, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "macos")
	require.NoError(t, err)

	require.NoError(t, reg.Deactivate(ctx, d.DeviceID))

	got, ok, err := s.FindByID(ctx, d.DeviceID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, got.Active)

	latest, ok, err := s.LatestByDevice(ctx, d.DeviceID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.OpDelete, latest.Operation)
	assert.Equal(t, uint64(1), latest.VectorClock[d.DeviceID])
}

func TestDeactivateUnknownDeviceFails(t *testing.T) {
	ctx := context.Background()
	reg, _ := newRegistry(t, time.Now())

	err := reg.Deactivate(ctx, "nope")
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.ErrDeviceNotFound, merr.Code)
}

func TestTouchLastSyncClampsToMonotonic(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg, s := newRegistry(t, start)

	d, err := reg.Register(ctx, "u1", "laptop", model.DeviceDesktop, "macos")
	require.NoError(t, err)

	require.NoError(t, reg.TouchLastSync(ctx, d.DeviceID, start.Add(time.Hour)))
	got, _, err := s.FindByID(ctx, d.DeviceID)
	require.NoError(t, err)
	assert.True(t, got.LastSyncAt.Equal(start.Add(time.Hour)))

	require.NoError(t, reg.TouchLastSync(ctx, d.DeviceID, start.Add(-time.Hour)))
	got, _, err = s.FindByID(ctx, d.DeviceID)
	require.NoError(t, err)
	assert.True(t, got.LastSyncAt.Equal(start.Add(time.Hour)), "earlier timestamp must be clamped")
}

func TestListOrdersByLastSyncDesc(t *testing.T) {
	ctx := context.Background()
	reg, s := newRegistry(t, time.Now())

	a, err := reg.Register(ctx, "u1", "a", model.DeviceDesktop, "macos")
	require.NoError(t, err)
	b, err := reg.Register(ctx, "u1", "b", model.DeviceMobile, "ios")
	require.NoError(t, err)

	require.NoError(t, s.UpdateLastSync(ctx, a.DeviceID, time.Now().Add(-time.Hour)))
	require.NoError(t, s.UpdateLastSync(ctx, b.DeviceID, time.Now()))

	list, err := reg.List(ctx, "u1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.DeviceID, list[0].DeviceID)
}
