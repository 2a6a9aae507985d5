package conflict_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaythread/syncengine/pkg/clock"
	"github.com/relaythread/syncengine/pkg/conflict"
	"github.com/relaythread/syncengine/pkg/model"
)

func TestDetectFindsConcurrentPairOnly(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := conflict.NewDetector(clock.Fixed{T: now})

	e1 := model.SyncEvent{EventID: "e1", EntityType: "Thread", EntityID: "t1", VectorClock: map[string]uint64{"d1": 2, "d2": 1}}
	e2 := model.SyncEvent{EventID: "e2", EntityType: "Thread", EntityID: "t1", VectorClock: map[string]uint64{"d1": 1, "d2": 2}}
	e3 := model.SyncEvent{EventID: "e3", EntityType: "Thread", EntityID: "t1", VectorClock: map[string]uint64{"d1": 1, "d2": 1}} // before both

	conflicts := d.Detect([]model.SyncEvent{e1, e2, e3})
	require.Len(t, conflicts, 1)
	assert.Equal(t, "e1-e2", conflicts[0].ConflictID)
	assert.Equal(t, now, conflicts[0].DetectedAt)
}

func TestDetectSkipsResolvedEvents(t *testing.T) {
	d := conflict.NewDetector(clock.Fixed{T: time.Now()})

	e1 := model.SyncEvent{EventID: "e1", EntityType: "Thread", EntityID: "t1", VectorClock: map[string]uint64{"d1": 1}, ConflictResolved: true}
	e2 := model.SyncEvent{EventID: "e2", EntityType: "Thread", EntityID: "t1", VectorClock: map[string]uint64{"d2": 1}}

	conflicts := d.Detect([]model.SyncEvent{e1, e2})
	assert.Empty(t, conflicts)
}

func TestDetectSurfacesEveryPairAmongThreeConcurrentEvents(t *testing.T) {
	d := conflict.NewDetector(clock.Fixed{T: time.Now()})

	e1 := model.SyncEvent{EventID: "e1", EntityType: "Msg", EntityID: "m1", VectorClock: map[string]uint64{"d1": 1}}
	e2 := model.SyncEvent{EventID: "e2", EntityType: "Msg", EntityID: "m1", VectorClock: map[string]uint64{"d2": 1}}
	e3 := model.SyncEvent{EventID: "e3", EntityType: "Msg", EntityID: "m1", VectorClock: map[string]uint64{"d3": 1}}

	conflicts := d.Detect([]model.SyncEvent{e1, e2, e3})
	assert.Len(t, conflicts, 3)
}

func TestResolveLastWriteWinsPicksLaterSyncedAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1 := model.SyncEvent{EventID: "e1", DeviceID: "d1", EntityType: "Thread", EntityID: "t1",
		Payload: map[string]any{"title": "A"}, VectorClock: map[string]uint64{"d1": 2, "d2": 1}, SyncedAt: base}
	e2 := model.SyncEvent{EventID: "e2", DeviceID: "d2", EntityType: "Thread", EntityID: "t1",
		Payload: map[string]any{"title": "B"}, VectorClock: map[string]uint64{"d1": 1, "d2": 2}, SyncedAt: base.Add(time.Minute)}

	resolved, err := conflict.Resolve(e1, e2, nil, model.StrategyLastWriteWins, nil)
	require.NoError(t, err)
	assert.Equal(t, "B", resolved.Payload["title"])
	assert.Equal(t, map[string]uint64{"d1": 2, "d2": 2}, resolved.VectorClock)
	assert.Equal(t, model.OpUpdate, resolved.Operation)
}

func TestResolveLastWriteWinsTiebreaksOnEventID(t *testing.T) {
	same := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1 := model.SyncEvent{EventID: "e1", Payload: map[string]any{"title": "A"}, VectorClock: map[string]uint64{"d1": 1}, SyncedAt: same}
	e2 := model.SyncEvent{EventID: "e2", Payload: map[string]any{"title": "B"}, VectorClock: map[string]uint64{"d2": 1}, SyncedAt: same}

	resolved, err := conflict.Resolve(e1, e2, nil, model.StrategyLastWriteWins, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", resolved.Payload["title"])
}

func TestResolveManualRequiresResolution(t *testing.T) {
	e1 := model.SyncEvent{EventID: "e1", VectorClock: map[string]uint64{"d1": 1}}
	e2 := model.SyncEvent{EventID: "e2", VectorClock: map[string]uint64{"d2": 1}}

	_, err := conflict.Resolve(e1, e2, nil, model.StrategyManual, nil)
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.ErrMissingResolution, merr.Code)

	resolved, err := conflict.Resolve(e1, e2, nil, model.StrategyManual, map[string]any{"title": "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", resolved.Payload["title"])
}

func TestResolveMergeSucceeds(t *testing.T) {
	base := &model.SyncEvent{EventID: "e0", Payload: map[string]any{"title": "X", "tags": []any{"a"}}}
	e1 := model.SyncEvent{EventID: "e1", Payload: map[string]any{"title": "Y", "tags": []any{"a"}}, VectorClock: map[string]uint64{"d1": 2}}
	e2 := model.SyncEvent{EventID: "e2", Payload: map[string]any{"title": "X", "tags": []any{"a", "b"}}, VectorClock: map[string]uint64{"d2": 2}}

	resolved, err := conflict.Resolve(e1, e2, base, model.StrategyMerge, nil)
	require.NoError(t, err)
	assert.Equal(t, "Y", resolved.Payload["title"])
	assert.Equal(t, []any{"a", "b"}, resolved.Payload["tags"])
}

func TestResolveMergeFailsOnDisagreement(t *testing.T) {
	base := &model.SyncEvent{EventID: "e0", Payload: map[string]any{"title": "X"}}
	e1 := model.SyncEvent{EventID: "e1", Payload: map[string]any{"title": "Y"}, VectorClock: map[string]uint64{"d1": 1}}
	e2 := model.SyncEvent{EventID: "e2", Payload: map[string]any{"title": "Z"}, VectorClock: map[string]uint64{"d2": 1}}

	_, err := conflict.Resolve(e1, e2, base, model.StrategyMerge, nil)
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.ErrAutoMergeFailed, merr.Code)
}

func TestResolveRejectsAlreadyResolved(t *testing.T) {
	e1 := model.SyncEvent{EventID: "e1", ConflictResolved: true, VectorClock: map[string]uint64{"d1": 1}}
	e2 := model.SyncEvent{EventID: "e2", VectorClock: map[string]uint64{"d2": 1}}

	_, err := conflict.Resolve(e1, e2, nil, model.StrategyLastWriteWins, nil)
	require.Error(t, err)
	var merr *model.Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, model.ErrAlreadyResolved, merr.Code)
}

func TestFindBasePicksMostRecentHappensBeforeBoth(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e1 := model.SyncEvent{EventID: "e1", VectorClock: map[string]uint64{"d1": 2, "d2": 1}}
	e2 := model.SyncEvent{EventID: "e2", VectorClock: map[string]uint64{"d1": 1, "d2": 2}}

	ancestorOld := model.SyncEvent{EventID: "a0", VectorClock: map[string]uint64{"d1": 1, "d2": 1}, SyncedAt: start}
	ancestorOlder := model.SyncEvent{EventID: "a-1", VectorClock: map[string]uint64{"d1": 0, "d2": 0}, SyncedAt: start.Add(-time.Hour)}
	unrelated := model.SyncEvent{EventID: "u1", VectorClock: map[string]uint64{"d3": 1}, SyncedAt: start.Add(time.Minute)}

	base := conflict.FindBase([]model.SyncEvent{ancestorOlder, ancestorOld, unrelated}, e1, e2)
	require.NotNil(t, base)
	assert.Equal(t, "a0", base.EventID)
}

func TestFindBaseReturnsNilWhenNoCommonAncestor(t *testing.T) {
	e1 := model.SyncEvent{EventID: "e1", VectorClock: map[string]uint64{"d1": 1}}
	e2 := model.SyncEvent{EventID: "e2", VectorClock: map[string]uint64{"d2": 1}}

	base := conflict.FindBase(nil, e1, e2)
	assert.Nil(t, base)
}
