// Command syncctl is a thin operator CLI over an in-process sync engine
// instance, backed by pkg/memstore. It exists to exercise and demonstrate
// the engine's public operations from a terminal; a real host wires the
// same pkg/sync.Coordinator against a persistent EventStore/DeviceStore
// instead of memstore.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relaythread/syncengine/internal/config"
	"github.com/relaythread/syncengine/pkg/clock"
	"github.com/relaythread/syncengine/pkg/device"
	"github.com/relaythread/syncengine/pkg/idgen"
	"github.com/relaythread/syncengine/pkg/memstore"
	"github.com/relaythread/syncengine/pkg/sync"
)

var cfgFile string

type engine struct {
	store    *memstore.Store
	registry *device.Registry
	coord    *sync.Coordinator
}

func newEngine() (*engine, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	store, err := memstore.New(idgen.UUID{}, clock.System{})
	if err != nil {
		return nil, fmt.Errorf("constructing store: %w", err)
	}
	registry := device.New(store, store, clock.System{}, idgen.UUID{})
	coord := sync.New(registry, store, clock.System{}, idgen.UUID{}, cfg)

	return &engine{store: store, registry: registry, coord: coord}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate a sync engine instance from the command line",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a sync engine config file")

	root.AddCommand(newDeviceCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newConflictsCmd())
	root.AddCommand(newDemoCmd())
	root.AddCommand(newConfigCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
