package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/relay/pkg/memory"
)

// Config represents the persistent relay configuration stored as config.toml
// in the .relay/ directory. The TOML layout uses sections for logical grouping.
// Durations are strings in time.ParseDuration form ("30s", "10m").
type Config struct {
	Version     int                     `toml:"version"`
	Relay       RelayConfig             `toml:"relay"`
	API         APIConfig               `toml:"api"`
	Client      ClientConfig            `toml:"client"`
	Sessions    SessionsConfig          `toml:"sessions"`
	Circuit     CircuitConfig           `toml:"circuit"`
	Memory      MemoryConfig            `toml:"memory"`
	Prompt      PromptConfig            `toml:"prompt"`
	EventStream EventStreamConfig       `toml:"eventstream"`
	Fallback    FallbackConfig          `toml:"fallback"`
	Quotas      map[string]memory.Quota `toml:"quotas,omitempty"`
	Backends    []BackendConfig         `toml:"backends,omitempty"`
}

// RelayConfig holds the dispatch server settings.
type RelayConfig struct {
	Listen          string `toml:"listen,omitempty"`
	RequestTimeout  string `toml:"request_timeout,omitempty"`
	ShutdownTimeout string `toml:"shutdown_timeout,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen     string `toml:"listen,omitempty"`
	DisableMCP bool   `toml:"disable_mcp,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// relay and API servers (e.g. relay status, relay ask).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	RelayTarget string `toml:"relay_target,omitempty"`
	APITarget   string `toml:"api_target,omitempty"`
}

// SessionsConfig holds session queue settings.
type SessionsConfig struct {
	IdleTimeout   string `toml:"idle_timeout,omitempty"`
	MaxConcurrent int64  `toml:"max_concurrent,omitempty"`
	QueueSize     int    `toml:"queue_size,omitempty"`
}

// CircuitConfig holds the breaker settings shared by every backend.
type CircuitConfig struct {
	Threshold int    `toml:"threshold,omitempty"`
	Cooldown  string `toml:"cooldown,omitempty"`
}

// MemoryConfig selects and tunes the memory store.
type MemoryConfig struct {
	// Provider is one of "local", "sqlite" or "postgres".
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`

	// Cache wraps the store in a read-through cache.
	Cache        bool  `toml:"cache,omitempty"`
	CacheEntries int64 `toml:"cache_entries,omitempty"`

	WorkingCapacity int `toml:"working_capacity,omitempty"`
	HistoryCapacity int `toml:"history_capacity,omitempty"`
}

// PromptConfig tunes prompt composition.
type PromptConfig struct {
	WordsToTokens float64 `toml:"words_to_tokens,omitempty"`
}

// EventStreamConfig selects where execution events are published.
type EventStreamConfig struct {
	Log          bool     `toml:"log,omitempty"`
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
	Workers      int      `toml:"workers,omitempty"`
	QueueSize    int      `toml:"queue_size,omitempty"`
}

// FallbackConfig holds the terminal fallback's canned response.
type FallbackConfig struct {
	Text string `toml:"text,omitempty"`
}

// BackendConfig is one [[backends]] entry of the cascade.
type BackendConfig struct {
	Name     string `toml:"name"`
	Provider string `toml:"provider"`
	URL      string `toml:"url,omitempty"`
	Model    string `toml:"model,omitempty"`

	// APIKey is optional; the provider's env var and credentials.toml are
	// consulted when it is empty.
	APIKey    string `toml:"api_key,omitempty"`
	MaxTokens int    `toml:"max_tokens,omitempty"`

	Priority      int    `toml:"priority"`
	Timeout       string `toml:"timeout,omitempty"`
	ProbeTimeout  string `toml:"probe_timeout,omitempty"`
	Capability    string `toml:"capability,omitempty"`
	PreferredMode string `toml:"preferred_mode,omitempty"`
	TokenBudget   int    `toml:"token_budget,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if v != "" {
				if _, err := time.ParseDuration(v); err != nil {
					return fmt.Errorf("invalid value for %s: %w", name, err)
				}
			}
			*field(c) = v
			return nil
		},
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func int64Key(name string, field func(c *Config) *int64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatInt(*field(c), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported scalar config keys.
// Keys use dotted notation matching the TOML section structure. The
// [[backends]] and [quotas] tables are edited in config.toml directly.
var configKeys = map[string]configKeyInfo{
	"relay.listen":           stringKey(func(c *Config) *string { return &c.Relay.Listen }),
	"relay.request_timeout":  durationKey("relay.request_timeout", func(c *Config) *string { return &c.Relay.RequestTimeout }),
	"relay.shutdown_timeout": durationKey("relay.shutdown_timeout", func(c *Config) *string { return &c.Relay.ShutdownTimeout }),

	"api.listen":      stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.disable_mcp": boolKey("api.disable_mcp", func(c *Config) *bool { return &c.API.DisableMCP }),

	"client.relay_target": stringKey(func(c *Config) *string { return &c.Client.RelayTarget }),
	"client.api_target":   stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"sessions.idle_timeout":   durationKey("sessions.idle_timeout", func(c *Config) *string { return &c.Sessions.IdleTimeout }),
	"sessions.max_concurrent": int64Key("sessions.max_concurrent", func(c *Config) *int64 { return &c.Sessions.MaxConcurrent }),
	"sessions.queue_size":     intKey("sessions.queue_size", func(c *Config) *int { return &c.Sessions.QueueSize }),

	"circuit.threshold": intKey("circuit.threshold", func(c *Config) *int { return &c.Circuit.Threshold }),
	"circuit.cooldown":  durationKey("circuit.cooldown", func(c *Config) *string { return &c.Circuit.Cooldown }),

	"memory.provider":         stringKey(func(c *Config) *string { return &c.Memory.Provider }),
	"memory.sqlite_path":      stringKey(func(c *Config) *string { return &c.Memory.SQLitePath }),
	"memory.postgres_dsn":     stringKey(func(c *Config) *string { return &c.Memory.PostgresDSN }),
	"memory.cache":            boolKey("memory.cache", func(c *Config) *bool { return &c.Memory.Cache }),
	"memory.cache_entries":    int64Key("memory.cache_entries", func(c *Config) *int64 { return &c.Memory.CacheEntries }),
	"memory.working_capacity": intKey("memory.working_capacity", func(c *Config) *int { return &c.Memory.WorkingCapacity }),
	"memory.history_capacity": intKey("memory.history_capacity", func(c *Config) *int { return &c.Memory.HistoryCapacity }),

	"prompt.words_to_tokens": {
		get: func(c *Config) string {
			if c.Prompt.WordsToTokens == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Prompt.WordsToTokens, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for prompt.words_to_tokens: %w", err)
			}
			c.Prompt.WordsToTokens = f
			return nil
		},
	},

	"eventstream.log": boolKey("eventstream.log", func(c *Config) *bool { return &c.EventStream.Log }),
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.KafkaBrokers = splitList(v)
			return nil
		},
	},
	"eventstream.kafka_topic": stringKey(func(c *Config) *string { return &c.EventStream.KafkaTopic }),
	"eventstream.workers":     intKey("eventstream.workers", func(c *Config) *int { return &c.EventStream.Workers }),
	"eventstream.queue_size":  intKey("eventstream.queue_size", func(c *Config) *int { return &c.EventStream.QueueSize }),

	"fallback.text": stringKey(func(c *Config) *string { return &c.Fallback.Text }),
}

// orderedKeys is the display order of configKeys, following the TOML layout.
var orderedKeys = []string{
	"relay.listen",
	"relay.request_timeout",
	"relay.shutdown_timeout",
	"api.listen",
	"api.disable_mcp",
	"client.relay_target",
	"client.api_target",
	"sessions.idle_timeout",
	"sessions.max_concurrent",
	"sessions.queue_size",
	"circuit.threshold",
	"circuit.cooldown",
	"memory.provider",
	"memory.sqlite_path",
	"memory.postgres_dsn",
	"memory.cache",
	"memory.cache_entries",
	"memory.working_capacity",
	"memory.history_capacity",
	"prompt.words_to_tokens",
	"eventstream.log",
	"eventstream.kafka_brokers",
	"eventstream.kafka_topic",
	"eventstream.workers",
	"eventstream.queue_size",
	"fallback.text",
}

// splitList splits a comma separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
