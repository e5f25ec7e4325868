package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/memory"
)

// ParseDuration parses a duration config value. An empty value is zero.
func ParseDuration(key, value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for %s: must not be negative", key)
	}
	return d, nil
}

// Validate reports every problem in cfg at once.
func (c *Config) Validate() error {
	var errs []error

	durations := map[string]string{
		"relay.request_timeout":  c.Relay.RequestTimeout,
		"relay.shutdown_timeout": c.Relay.ShutdownTimeout,
		"sessions.idle_timeout":  c.Sessions.IdleTimeout,
		"circuit.cooldown":       c.Circuit.Cooldown,
	}
	for key, value := range durations {
		if _, err := ParseDuration(key, value); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Memory.Provider {
	case MemoryProviderLocal, MemoryProviderSQLite:
	case MemoryProviderPostgres:
		if c.Memory.PostgresDSN == "" {
			errs = append(errs, errors.New("memory.postgres_dsn is required for the postgres provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown memory.provider %q (supported: %s)",
			c.Memory.Provider, strings.Join(MemoryProviders(), ", ")))
	}

	if len(c.EventStream.KafkaBrokers) > 0 && c.EventStream.KafkaTopic == "" {
		errs = append(errs, errors.New("eventstream.kafka_topic is required when kafka brokers are set"))
	}

	if _, err := c.QuotaTable(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if err := b.validate(); err != nil {
			errs = append(errs, fmt.Errorf("backends[%d]: %w", i, err))
			continue
		}
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("backends[%d]: duplicate backend name %q", i, b.Name))
		}
		seen[b.Name] = true
	}

	return errors.Join(errs...)
}

func (b BackendConfig) validate() error {
	if b.Name == "" {
		return errors.New("name is required")
	}
	if !slices.Contains(backend.SupportedProviders(), b.Provider) || b.Provider == backend.ProviderFallback {
		return fmt.Errorf("unknown provider %q", b.Provider)
	}
	if b.Name == backend.ProviderFallback {
		return fmt.Errorf("name %q is reserved", b.Name)
	}
	if _, err := ParseDuration("timeout", b.Timeout); err != nil {
		return err
	}
	if _, err := ParseDuration("probe_timeout", b.ProbeTimeout); err != nil {
		return err
	}
	if _, err := memory.ParseCapability(b.Capability); err != nil {
		return err
	}
	if _, err := memory.ParseMode(b.PreferredMode); err != nil {
		return err
	}
	return nil
}

// CircuitSettings converts the [circuit] section.
func (c *Config) CircuitSettings() (circuit.Settings, error) {
	cooldown, err := ParseDuration("circuit.cooldown", c.Circuit.Cooldown)
	if err != nil {
		return circuit.Settings{}, err
	}

	s := circuit.Settings{
		Threshold: c.Circuit.Threshold,
		Cooldown:  cooldown,
	}
	if s.Threshold <= 0 {
		s.Threshold = circuit.DefaultThreshold
	}
	return s, nil
}

// QuotaTable converts the [quotas."mode.capability"] tables into overrides
// for memory.DefaultQuotaTable. A configured row replaces the built-in row
// for its pair.
func (c *Config) QuotaTable() (memory.QuotaTable, error) {
	if len(c.Quotas) == 0 {
		return nil, nil
	}

	table := make(memory.QuotaTable, len(c.Quotas))
	for raw, q := range c.Quotas {
		key, err := memory.ParseQuotaKey(raw)
		if err != nil {
			return nil, fmt.Errorf("quotas: %w", err)
		}
		if q.Biography < 0 || q.Canonical < 0 || q.Working < 0 || q.ClientFacts < 0 || q.History < 0 {
			return nil, fmt.Errorf("quotas: %q has a negative limit", raw)
		}
		table[key] = q
	}
	return table, nil
}
