package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaythread/syncengine/internal/config"
	"github.com/relaythread/syncengine/pkg/sync"
)

func TestLoadWithNoFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, sync.DefaultConfig(), cfg)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch_size: 25\nhealthy_sync_window_ms: 5000\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.HealthySyncWindow)
	assert.Equal(t, sync.DefaultConfig().MaxEventAgeResolved, cfg.MaxEventAgeResolved)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_event_age_resolved: not-a-duration\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestAsYAMLRoundTripsBatchSize(t *testing.T) {
	cfg := sync.DefaultConfig()
	cfg.BatchSize = 42

	out, err := config.AsYAML(cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 42")
}
