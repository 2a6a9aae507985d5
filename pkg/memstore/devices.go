package memstore

import (
	"context"
	"sort"
	"time"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/relaythread/syncengine/pkg/model"
)

func (s *Store) Insert(_ context.Context, d model.Device) (model.Device, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	rec := d
	if err := txn.Insert(deviceTable, &rec); err != nil {
		return model.Device{}, err
	}
	txn.Commit()
	return rec, nil
}

func (s *Store) FindByUserAndName(_ context.Context, userID, name string) ([]model.Device, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(deviceTable, "user_name", userID, name)
	if err != nil {
		return nil, err
	}
	return collectDevices(it), nil
}

func (s *Store) FindByID(_ context.Context, deviceID string) (model.Device, bool, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(deviceTable, "id", deviceID)
	if err != nil {
		return model.Device{}, false, err
	}
	if raw == nil {
		return model.Device{}, false, nil
	}
	return *raw.(*model.Device), true, nil
}

func (s *Store) ListForUser(_ context.Context, userID string, activeOnly bool) ([]model.Device, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(deviceTable, "user", userID)
	if err != nil {
		return nil, err
	}
	devices := collectDevices(it)
	if activeOnly {
		filtered := devices[:0]
		for _, d := range devices {
			if d.Active {
				filtered = append(filtered, d)
			}
		}
		devices = filtered
	}
	sortByLastSyncDesc(devices)
	return devices, nil
}

func (s *Store) UpdateLastSync(_ context.Context, deviceID string, t time.Time) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(deviceTable, "id", deviceID)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	d := *raw.(*model.Device)
	d.LastSyncAt = t
	if err := txn.Insert(deviceTable, &d); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) SetActive(_ context.Context, deviceID string, active bool) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(deviceTable, "id", deviceID)
	if err != nil {
		return err
	}
	if raw == nil {
		return ErrNotFound
	}
	d := *raw.(*model.Device)
	d.Active = active
	if err := txn.Insert(deviceTable, &d); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func collectDevices(it memdb.ResultIterator) []model.Device {
	var out []model.Device
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, *raw.(*model.Device))
	}
	return out
}

func sortByLastSyncDesc(devices []model.Device) {
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastSyncAt.After(devices[j].LastSyncAt)
	})
}
