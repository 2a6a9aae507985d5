// Package memstore is the in-process reference implementation of the
// ports.EventStore and ports.DeviceStore ports, backed by
// github.com/hashicorp/go-memdb: an indexed, transactional, purely
// in-memory table acting as "ground truth" for tests and for cmd/syncctl. A
// production host swaps this for an adapter over its relational store; the
// ports package is the seam.
package memstore

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/relaythread/syncengine/pkg/ports"
)

const (
	deviceTable = "device"
	eventTable  = "event"
)

// ErrNotFound is returned by UpdateLastSync, SetActive and MarkResolved when
// the addressed device or event does not exist. It is a plain error, not a
// model.Error; callers such as pkg/device and pkg/sync wrap it.
var ErrNotFound = fmt.Errorf("memstore: not found")

var deviceSchema = &memdb.TableSchema{
	Name: deviceTable,
	Indexes: map[string]*memdb.IndexSchema{
		"id": {
			Name:    "id",
			Unique:  true,
			Indexer: &memdb.StringFieldIndex{Field: "DeviceID"},
		},
		"user": {
			Name:    "user",
			Unique:  false,
			Indexer: &memdb.StringFieldIndex{Field: "UserID"},
		},
		"user_name": {
			Name:   "user_name",
			Unique: false,
			Indexer: &memdb.CompoundIndex{
				Indexes: []memdb.Indexer{
					&memdb.StringFieldIndex{Field: "UserID"},
					&memdb.StringFieldIndex{Field: "Name"},
				},
			},
		},
	},
}

var eventSchema = &memdb.TableSchema{
	Name: eventTable,
	Indexes: map[string]*memdb.IndexSchema{
		"id": {
			Name:    "id",
			Unique:  true,
			Indexer: &memdb.StringFieldIndex{Field: "EventID"},
		},
		"entity": {
			Name:   "entity",
			Unique: false,
			Indexer: &memdb.CompoundIndex{
				Indexes: []memdb.Indexer{
					&memdb.StringFieldIndex{Field: "EntityType"},
					&memdb.StringFieldIndex{Field: "EntityID"},
				},
			},
		},
		"device": {
			Name:    "device",
			Unique:  false,
			Indexer: &memdb.StringFieldIndex{Field: "DeviceID"},
		},
	},
}

func newDB() (*memdb.MemDB, error) {
	return memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			deviceTable: deviceSchema,
			eventTable:  eventSchema,
		},
	})
}

// Store holds the shared memdb and implements both ports.EventStore and
// ports.DeviceStore. It owns event id generation and the ingest timestamp
// itself, per the EventStore.Append contract: callers never set
// EventID/SyncedAt.
type Store struct {
	db    *memdb.MemDB
	idgen ports.IdGen
	clock ports.Clock
}

// New constructs an empty in-memory Store, using idgen/clk to stamp every
// appended event.
func New(idgen ports.IdGen, clk ports.Clock) (*Store, error) {
	db, err := newDB()
	if err != nil {
		return nil, err
	}
	return &Store{db: db, idgen: idgen, clock: clk}, nil
}
