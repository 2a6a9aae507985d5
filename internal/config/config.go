// Package config loads the sync engine's tunables: viper layers a config
// file and OS environment over compiled-in defaults, and dario.cat/mergo
// fills any field left unset in that partial result from
// sync.DefaultConfig().
package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"
	"sigs.k8s.io/yaml"

	"github.com/relaythread/syncengine/pkg/sync"
)

const envPrefix = "SYNCENGINE"

// fileConfig mirrors sync.Config with plain types viper can bind from YAML
// or environment variables (duration strings rather than time.Duration
// literals, since env vars arrive as strings).
type fileConfig struct {
	MaxEventAgeResolved string `mapstructure:"max_event_age_resolved" json:"max_event_age_resolved"`
	HealthySyncWindowMs int64  `mapstructure:"healthy_sync_window_ms" json:"healthy_sync_window_ms"`
	BatchSize           int    `mapstructure:"batch_size" json:"batch_size"`
}

// Load reads configFile (if non-empty) plus SYNCENGINE_* environment
// variables, and merges the result onto sync.DefaultConfig(). Any field
// left unset in the file/environment keeps its default.
func Load(configFile string) (sync.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	for _, key := range []string{"max_event_age_resolved", "healthy_sync_window_ms", "batch_size"} {
		if err := v.BindEnv(key); err != nil {
			return sync.Config{}, fmt.Errorf("binding env var for %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return sync.Config{}, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return sync.Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	partial := sync.Config{BatchSize: fc.BatchSize}
	if fc.HealthySyncWindowMs > 0 {
		partial.HealthySyncWindow = time.Duration(fc.HealthySyncWindowMs) * time.Millisecond
	}
	if fc.MaxEventAgeResolved != "" {
		d, err := time.ParseDuration(fc.MaxEventAgeResolved)
		if err != nil {
			return sync.Config{}, fmt.Errorf("parsing max_event_age_resolved: %w", err)
		}
		partial.MaxEventAgeResolved = d
	}

	if err := mergo.Merge(&partial, sync.DefaultConfig()); err != nil {
		return sync.Config{}, fmt.Errorf("merging config defaults: %w", err)
	}
	return partial, nil
}

// AsYAML renders the effective config for an operator to inspect (e.g. a
// `config show` CLI command), the same shape Load accepts as a file.
func AsYAML(cfg sync.Config) (string, error) {
	fc := fileConfig{
		MaxEventAgeResolved: cfg.MaxEventAgeResolved.String(),
		HealthySyncWindowMs: cfg.HealthySyncWindow.Milliseconds(),
		BatchSize:           cfg.BatchSize,
	}
	out, err := yaml.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}
	return string(out), nil
}
