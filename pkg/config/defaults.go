package config

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/memory"
)

const (
	defaultRelayListen     = ":8080"
	defaultAPIListen       = ":8081"
	defaultRequestTimeout  = "2m"
	defaultShutdownTimeout = "30s"

	defaultClientRelayTarget = "http://localhost:8080"
	defaultClientAPITarget   = "http://localhost:8081"

	defaultIdleTimeout   = "10m"
	defaultMaxConcurrent = 8
	defaultQueueSize     = 32

	defaultCircuitThreshold = 3
	defaultCircuitCooldown  = "30s"

	defaultMemoryProvider  = MemoryProviderLocal
	defaultCacheEntries    = 10_000
	defaultWorkingCapacity = 20
	defaultHistoryCapacity = 200

	defaultWordsToTokens = 1.3

	defaultKafkaTopic  = "relay.executions"
	defaultWorkers     = 3
	defaultEventsQueue = 256

	defaultBackendTimeout      = "30s"
	defaultBackendProbeTimeout = "2s"
)

// Memory store providers.
const (
	MemoryProviderLocal    = "local"
	MemoryProviderSQLite   = "sqlite"
	MemoryProviderPostgres = "postgres"
)

// MemoryProviders returns the supported memory store providers.
func MemoryProviders() []string {
	return []string{MemoryProviderLocal, MemoryProviderSQLite, MemoryProviderPostgres}
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Relay: RelayConfig{
			Listen:          defaultRelayListen,
			RequestTimeout:  defaultRequestTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			RelayTarget: defaultClientRelayTarget,
			APITarget:   defaultClientAPITarget,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   defaultIdleTimeout,
			MaxConcurrent: defaultMaxConcurrent,
			QueueSize:     defaultQueueSize,
		},
		Circuit: CircuitConfig{
			Threshold: defaultCircuitThreshold,
			Cooldown:  defaultCircuitCooldown,
		},
		Memory: MemoryConfig{
			Provider:        defaultMemoryProvider,
			CacheEntries:    defaultCacheEntries,
			WorkingCapacity: defaultWorkingCapacity,
			HistoryCapacity: defaultHistoryCapacity,
		},
		Prompt: PromptConfig{
			WordsToTokens: defaultWordsToTokens,
		},
		EventStream: EventStreamConfig{
			Log:        true,
			KafkaTopic: defaultKafkaTopic,
			Workers:    defaultWorkers,
			QueueSize:  defaultEventsQueue,
		},
		Backends: []BackendConfig{
			presetBackend(backend.ProviderOllama),
		},
	}
}

// presetBackend returns a single-backend cascade entry for a provider.
func presetBackend(provider string) BackendConfig {
	b := BackendConfig{
		Name:          provider,
		Provider:      provider,
		Priority:      0,
		Timeout:       defaultBackendTimeout,
		ProbeTimeout:  defaultBackendProbeTimeout,
		Capability:    string(memory.CapabilityLarge),
		PreferredMode: string(memory.ModeStandard),
		TokenBudget:   8192,
	}

	if provider == backend.ProviderOllama {
		b.URL = "http://localhost:11434"
		b.Capability = string(memory.CapabilitySmall)
		b.PreferredMode = string(memory.ModeMinimal)
		b.TokenBudget = 2048
	}

	return b
}

// PresetConfig returns the default Config with its cascade replaced by the
// named provider preset. Hosted presets keep the local ollama backend as a
// second tier.
// Supported presets: "ollama", "openai", "anthropic", "gemini".
func PresetConfig(name string) (*Config, error) {
	cfg := NewDefaultConfig()

	switch provider := strings.ToLower(name); provider {
	case backend.ProviderOllama:
		return cfg, nil

	case backend.ProviderOpenAI, backend.ProviderAnthropic, backend.ProviderGemini:
		local := presetBackend(backend.ProviderOllama)
		local.Priority = 10
		cfg.Backends = []BackendConfig{presetBackend(provider), local}
		return cfg, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{backend.ProviderOllama, backend.ProviderOpenAI, backend.ProviderAnthropic, backend.ProviderGemini}
}
