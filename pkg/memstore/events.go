package memstore

import (
	"context"
	"sort"
	"time"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/samber/lo"

	"github.com/relaythread/syncengine/pkg/model"
)

func (s *Store) Append(_ context.Context, e model.SyncEvent) (model.SyncEvent, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	rec := e
	rec.EventID = s.idgen.NewID()
	rec.SyncedAt = s.clock.Now()
	if err := txn.Insert(eventTable, &rec); err != nil {
		return model.SyncEvent{}, err
	}
	txn.Commit()
	return rec, nil
}

func (s *Store) ByEntity(_ context.Context, entityType, entityID string) ([]model.SyncEvent, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(eventTable, "entity", entityType, entityID)
	if err != nil {
		return nil, err
	}
	events := collectEvents(it)
	sortBySyncedAtAsc(events)
	return events, nil
}

func (s *Store) ByDeviceSince(_ context.Context, deviceID string, since time.Time) ([]model.SyncEvent, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(eventTable, "device", deviceID)
	if err != nil {
		return nil, err
	}
	events := lo.Filter(collectEvents(it), func(e model.SyncEvent, _ int) bool {
		return e.SyncedAt.After(since)
	})
	sortBySyncedAtAsc(events)
	return events, nil
}

func (s *Store) LatestByDevice(_ context.Context, deviceID string) (model.SyncEvent, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(eventTable, "device", deviceID)
	if err != nil {
		return model.SyncEvent{}, false, err
	}
	events := collectEvents(it)
	if len(events) == 0 {
		return model.SyncEvent{}, false, nil
	}
	sortBySyncedAtAsc(events)
	return events[len(events)-1], true, nil
}

func (s *Store) Get(_ context.Context, eventID string) (model.SyncEvent, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(eventTable, "id", eventID)
	if err != nil {
		return model.SyncEvent{}, false, err
	}
	if raw == nil {
		return model.SyncEvent{}, false, nil
	}
	return *raw.(*model.SyncEvent), true, nil
}

func (s *Store) UnresolvedForUser(_ context.Context, _ string, deviceIDs []string) ([]model.SyncEvent, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	var out []model.SyncEvent
	for _, deviceID := range deviceIDs {
		it, err := txn.Get(eventTable, "device", deviceID)
		if err != nil {
			return nil, err
		}
		for _, e := range collectEvents(it) {
			if !e.ConflictResolved {
				out = append(out, e)
			}
		}
	}
	sortBySyncedAtAsc(out)
	return out, nil
}

func (s *Store) MarkResolved(_ context.Context, eventIDs []string, strategy model.ResolutionStrategy) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	for _, id := range eventIDs {
		raw, err := txn.First(eventTable, "id", id)
		if err != nil {
			return err
		}
		if raw == nil {
			return ErrNotFound
		}
		e := *raw.(*model.SyncEvent)
		e.ConflictResolved = true
		e.ResolutionStrategy = strategy
		if err := txn.Insert(eventTable, &e); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *Store) DeleteResolvedBefore(_ context.Context, deviceID string, before time.Time) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(eventTable, "device", deviceID)
	if err != nil {
		return 0, err
	}
	toDelete := lo.Filter(collectEvents(it), func(e model.SyncEvent, _ int) bool {
		return e.ConflictResolved && e.SyncedAt.Before(before)
	})
	for _, e := range toDelete {
		if err := txn.Delete(eventTable, &e); err != nil {
			return 0, err
		}
	}
	txn.Commit()
	return len(toDelete), nil
}

func (s *Store) CountForUser(_ context.Context, deviceIDs []string) (int, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	total := 0
	for _, deviceID := range deviceIDs {
		it, err := txn.Get(eventTable, "device", deviceID)
		if err != nil {
			return 0, err
		}
		total += len(collectEvents(it))
	}
	return total, nil
}

func collectEvents(it memdb.ResultIterator) []model.SyncEvent {
	var out []model.SyncEvent
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*model.SyncEvent))
	}
	return out
}

func sortBySyncedAtAsc(events []model.SyncEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].SyncedAt.Before(events[j].SyncedAt)
	})
}
