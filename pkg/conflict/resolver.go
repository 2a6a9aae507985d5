package conflict

import (
	"github.com/relaythread/syncengine/pkg/delta"
	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/vclock"
)

// FindBase returns the most recent event among candidates that happens
// strictly before both e1 and e2, or nil if none exists. It is the "base"
// three_way_merge uses for MERGE resolution.
func FindBase(candidates []model.SyncEvent, e1, e2 model.SyncEvent) *model.SyncEvent {
	c1 := vclock.FromModel(e1.VectorClock)
	c2 := vclock.FromModel(e2.VectorClock)

	var best *model.SyncEvent
	for i := range candidates {
		cand := candidates[i]
		if cand.EventID == e1.EventID || cand.EventID == e2.EventID {
			continue
		}
		cc := vclock.FromModel(cand.VectorClock)
		if vclock.Compare(cc, c1) != vclock.Before || vclock.Compare(cc, c2) != vclock.Before {
			continue
		}
		if best == nil || cand.SyncedAt.After(best.SyncedAt) {
			c := cand
			best = &c
		}
	}
	return best
}

// Resolve computes the resolved SyncEvent for a conflicting pair per one of
// the three strategies. It does not mutate or persist anything: the caller
// (pkg/sync) is responsible for marking e1/e2 resolved and appending the
// returned event.
func Resolve(e1, e2 model.SyncEvent, base *model.SyncEvent, strategy model.ResolutionStrategy, resolution map[string]any) (model.SyncEvent, error) {
	if e1.ConflictResolved || e2.ConflictResolved {
		return model.SyncEvent{}, model.NewError(model.ErrAlreadyResolved, "one of the conflicting events is already resolved")
	}

	var payload map[string]any
	switch strategy {
	case model.StrategyLastWriteWins:
		payload = pickLWW(e1, e2).Payload

	case model.StrategyManual:
		if resolution == nil {
			return model.SyncEvent{}, model.NewError(model.ErrMissingResolution, "manual resolution requires a resolution payload")
		}
		payload = resolution

	case model.StrategyMerge:
		basePayload := map[string]any{}
		if base != nil {
			basePayload = base.Payload
		}
		merged, conflicts := delta.ThreeWayMerge(basePayload, e1.Payload, e2.Payload)
		if len(conflicts) > 0 {
			return model.SyncEvent{}, model.NewError(model.ErrAutoMergeFailed, "three-way merge left unresolved paths; retry with MANUAL")
		}
		mergedMap, ok := merged.(map[string]any)
		if !ok {
			mergedMap = map[string]any{}
		}
		payload = mergedMap

	default:
		return model.SyncEvent{}, model.NewError(model.ErrValidation, "unknown resolution strategy "+string(strategy))
	}

	mergedClock := vclock.Merge(vclock.FromModel(e1.VectorClock), vclock.FromModel(e2.VectorClock))
	return model.SyncEvent{
		DeviceID:    e1.DeviceID,
		EntityType:  e1.EntityType,
		EntityID:    e1.EntityID,
		Operation:   model.OpUpdate,
		Payload:     payload,
		VectorClock: mergedClock.ToModel(),
	}, nil
}

// pickLWW implements the LAST_WRITE_WINS tiebreak: later SyncedAt wins;
// equal SyncedAt falls back to lexicographically smaller EventID.
func pickLWW(e1, e2 model.SyncEvent) model.SyncEvent {
	if e1.SyncedAt.After(e2.SyncedAt) {
		return e1
	}
	if e2.SyncedAt.After(e1.SyncedAt) {
		return e2
	}
	if e1.EventID < e2.EventID {
		return e1
	}
	return e2
}
