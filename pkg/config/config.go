package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

// Configer reads and writes config.toml in a resolved .relay/ directory.
type Configer struct {
	dir  string
	path string
}

func NewConfiger(override string) (*Configer, error) {
	path, err := dotdir.NewManager().File(override, configFile)
	if err != nil {
		return nil, err
	}
	return &Configer{dir: filepath.Dir(path), path: path}, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	result := make([]string, 0, len(configKeys))
	seen := make(map[string]bool, len(configKeys))
	for _, k := range orderedKeys {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	for k := range configKeys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

// GetTarget returns the path of config.toml.
func (c *Configer) GetTarget() string {
	return c.path
}

// Dir returns the resolved .relay/ directory.
func (c *Configer) Dir() string {
	return c.dir
}

// Exists reports whether config.toml is present on disk.
func (c *Configer) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// LoadConfig reads config.toml over the built-in defaults. A missing file
// yields the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	data, err := os.ReadFile(c.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return NewDefaultConfig(), nil
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfigTOML(data)
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Relay.Listen == "" {
		cfg.Relay.Listen = defaults.Relay.Listen
	}
	if cfg.Relay.RequestTimeout == "" {
		cfg.Relay.RequestTimeout = defaults.Relay.RequestTimeout
	}
	if cfg.Relay.ShutdownTimeout == "" {
		cfg.Relay.ShutdownTimeout = defaults.Relay.ShutdownTimeout
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Client.RelayTarget == "" {
		cfg.Client.RelayTarget = defaults.Client.RelayTarget
	}
	if cfg.Client.APITarget == "" {
		cfg.Client.APITarget = defaults.Client.APITarget
	}

	if cfg.Sessions.IdleTimeout == "" {
		cfg.Sessions.IdleTimeout = defaults.Sessions.IdleTimeout
	}
	if cfg.Sessions.MaxConcurrent <= 0 {
		cfg.Sessions.MaxConcurrent = defaults.Sessions.MaxConcurrent
	}
	if cfg.Sessions.QueueSize <= 0 {
		cfg.Sessions.QueueSize = defaults.Sessions.QueueSize
	}

	if cfg.Circuit.Threshold <= 0 {
		cfg.Circuit.Threshold = defaults.Circuit.Threshold
	}
	if cfg.Circuit.Cooldown == "" {
		cfg.Circuit.Cooldown = defaults.Circuit.Cooldown
	}

	if cfg.Memory.Provider == "" {
		cfg.Memory.Provider = defaults.Memory.Provider
	}
	if cfg.Memory.CacheEntries <= 0 {
		cfg.Memory.CacheEntries = defaults.Memory.CacheEntries
	}
	if cfg.Memory.WorkingCapacity <= 0 {
		cfg.Memory.WorkingCapacity = defaults.Memory.WorkingCapacity
	}
	if cfg.Memory.HistoryCapacity <= 0 {
		cfg.Memory.HistoryCapacity = defaults.Memory.HistoryCapacity
	}

	if cfg.Prompt.WordsToTokens <= 0 {
		cfg.Prompt.WordsToTokens = defaults.Prompt.WordsToTokens
	}

	if cfg.EventStream.KafkaTopic == "" {
		cfg.EventStream.KafkaTopic = defaults.EventStream.KafkaTopic
	}
	if cfg.EventStream.Workers <= 0 {
		cfg.EventStream.Workers = defaults.EventStream.Workers
	}
	if cfg.EventStream.QueueSize <= 0 {
		cfg.EventStream.QueueSize = defaults.EventStream.QueueSize
	}

	if cfg.Backends == nil {
		cfg.Backends = defaults.Backends
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.Name == "" {
			b.Name = b.Provider
		}
		if b.Timeout == "" {
			b.Timeout = defaultBackendTimeout
		}
		if b.ProbeTimeout == "" {
			b.ProbeTimeout = defaultBackendProbeTimeout
		}
	}
}

// SaveConfig writes cfg to config.toml with owner-only permissions, since
// backend tables may carry API keys.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config. Fields absent from the
// data keep their defaults; a [[backends]] table replaces the default cascade
// entirely.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()

	// The decoder reuses slice elements, so clear the default cascade to
	// keep its fields from leaking into file-provided backends.
	cfg.Backends = nil

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	applyDefaults(cfg)
	return cfg, nil
}
