// Package config loads the node's structured configuration document via
// viper, the way restic loads its own options through
// spf13/viper-adjacent flag/ini parsing (internal/options).
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/sunsided/yeet-yoink/internal/errors"
)

// DefaultLeaseSeconds is the temporal lease duration applied to a file
// when no lease_seconds override is configured.
const DefaultLeaseSeconds = 5 * 60

// DefaultCommandBuffer is the backbone/backend command channel capacity
// used when command_buffer is not configured.
const DefaultCommandBuffer = 64

// BackendConfig describes one configured backend instance.
type BackendConfig struct {
	Kind   string                 `mapstructure:"kind"`
	Params map[string]interface{} `mapstructure:"params"`
}

// Config is the root configuration document.
type Config struct {
	Backends      []BackendConfig `mapstructure:"backends"`
	TempDir       string          `mapstructure:"temp_dir"`
	LeaseSeconds  int             `mapstructure:"lease_seconds"`
	CommandBuffer int             `mapstructure:"command_buffer"`
	ListenAddr    string          `mapstructure:"listen_addr"`
}

// Lease returns the configured temporal lease as a time.Duration, applying
// the default when unset.
func (c Config) Lease() time.Duration {
	if c.LeaseSeconds <= 0 {
		return DefaultLeaseSeconds * time.Second
	}
	return time.Duration(c.LeaseSeconds) * time.Second
}

// Buffer returns the configured command channel capacity, applying the
// default when unset.
func (c Config) Buffer() int {
	if c.CommandBuffer <= 0 {
		return DefaultCommandBuffer
	}
	return c.CommandBuffer
}

// Load reads the configuration document at path (any format viper
// supports: YAML, JSON, TOML) and decodes it into a Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading configuration file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding configuration file")
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	return &cfg, nil
}
