// Package conflict finds pairs of concurrent unresolved SyncEvents on the
// same entity, and resolves a pair via LAST_WRITE_WINS, MANUAL, or
// three-way MERGE.
package conflict

import (
	"context"

	"github.com/relaythread/syncengine/pkg/model"
	"github.com/relaythread/syncengine/pkg/ports"
	"github.com/relaythread/syncengine/pkg/vclock"
)

// Detector buckets a set of events by entity and surfaces every
// CONCURRENT, unresolved pair within each bucket.
type Detector struct {
	clock ports.Clock
}

func NewDetector(clk ports.Clock) *Detector {
	return &Detector{clock: clk}
}

// Detect scans events, bucketed by (EntityType, EntityID), and returns one
// model.Conflict per CONCURRENT unresolved pair. Resolving one pair does
// not remove the others on the same entity; callers iterate.
func (d *Detector) Detect(events []model.SyncEvent) []model.Conflict {
	buckets := make(map[[2]string][]model.SyncEvent)
	for _, e := range events {
		if e.ConflictResolved {
			continue
		}
		key := [2]string{e.EntityType, e.EntityID}
		buckets[key] = append(buckets[key], e)
	}

	now := d.clock.Now()
	var out []model.Conflict
	for key, bucket := range buckets {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				e1, e2 := bucket[i], bucket[j]
				c1 := vclock.FromModel(e1.VectorClock)
				c2 := vclock.FromModel(e2.VectorClock)
				if vclock.Compare(c1, c2) != vclock.Concurrent {
					continue
				}
				out = append(out, model.Conflict{
					ConflictID: e1.EventID + "-" + e2.EventID,
					EntityType: key[0],
					EntityID:   key[1],
					Events:     [2]model.SyncEvent{e1, e2},
					DetectedAt: now,
				})
			}
		}
	}
	return out
}

// DetectForEntity restricts Detect to events store holds for one entity,
// the way record_event re-scans only the affected entity rather than
// sweeping the whole log (see pkg/sync).
func (d *Detector) DetectForEntity(ctx context.Context, store ports.EventStore, entityType, entityID string) ([]model.Conflict, error) {
	events, err := store.ByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, model.Wrap(model.ErrStoreUnavailable, "loading entity events", err)
	}
	return d.Detect(events), nil
}
