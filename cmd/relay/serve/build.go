package servecmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/credentials"
	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/eventstream/kafka"
	"github.com/papercomputeco/relay/pkg/eventstream/nop"
	"github.com/papercomputeco/relay/pkg/eventstream/zaplog"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/memory/cached"
	"github.com/papercomputeco/relay/pkg/memory/local"
	"github.com/papercomputeco/relay/pkg/memory/postgres"
	"github.com/papercomputeco/relay/pkg/memory/sqlite"

	backendutils "github.com/papercomputeco/relay/pkg/backend/utils"
)

const defaultSQLiteFile = "relay.db"

// NewStore opens the memory store selected by cfg.Memory. A sqlite store
// without a path lives in dir.
func NewStore(ctx context.Context, cfg *config.Config, dir string, log *zap.Logger) (memory.Store, error) {
	var (
		store memory.Store
		err   error
	)

	switch cfg.Memory.Provider {
	case config.MemoryProviderLocal, "":
		log.Info("using in-memory memory store")
		store = local.NewStore()

	case config.MemoryProviderSQLite:
		path := cfg.Memory.SQLitePath
		if path == "" {
			path = filepath.Join(dir, defaultSQLiteFile)
		}
		store, err = sqlite.NewStore(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite memory store: %w", err)
		}
		log.Info("using sqlite memory store", zap.String("path", path))

	case config.MemoryProviderPostgres:
		store, err = postgres.NewStore(ctx, cfg.Memory.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("opening postgres memory store: %w", err)
		}
		log.Info("using postgres memory store")

	default:
		return nil, fmt.Errorf("unknown memory provider: %q", cfg.Memory.Provider)
	}

	if !cfg.Memory.Cache {
		return store, nil
	}

	c, err := cached.New(store, cached.Config{MaxEntries: cfg.Memory.CacheEntries})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("caching memory store reads", zap.Int64("max_entries", cfg.Memory.CacheEntries))
	return c, nil
}

// NewDescriptors builds the backend cascade from the [[backends]] tables.
// API keys resolve through creds when the table leaves them empty.
func NewDescriptors(ctx context.Context, cfg *config.Config, creds *credentials.Manager, log *zap.Logger) ([]dispatch.Descriptor, error) {
	descriptors := make([]dispatch.Descriptor, 0, len(cfg.Backends))

	for _, b := range cfg.Backends {
		apiKey := b.APIKey
		if creds != nil {
			key, err := creds.Resolve(b.Provider, b.APIKey)
			if err != nil {
				return nil, fmt.Errorf("resolving %s api key: %w", b.Name, err)
			}
			if key.Source != credentials.SourceNone {
				log.Debug("resolved backend api key",
					zap.String("backend", b.Name),
					zap.String("source", string(key.Source)),
				)
			}
			apiKey = key.Value
		}

		be, err := backendutils.NewBackend(ctx, &backendutils.NewBackendOpts{
			ProviderType: b.Provider,
			Name:         b.Name,
			TargetURL:    b.URL,
			Model:        b.Model,
			APIKey:       apiKey,
			MaxTokens:    b.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("creating backend %s: %w", b.Name, err)
		}

		timeout, err := config.ParseDuration("timeout", b.Timeout)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		probeTimeout, err := config.ParseDuration("probe_timeout", b.ProbeTimeout)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		capability, err := memory.ParseCapability(b.Capability)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		mode, err := memory.ParseMode(b.PreferredMode)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}

		descriptors = append(descriptors, dispatch.Descriptor{
			Backend:       be,
			Priority:      b.Priority,
			Timeout:       timeout,
			ProbeTimeout:  probeTimeout,
			Capability:    capability,
			PreferredMode: mode,
			TokenBudget:   b.TokenBudget,
		})
	}

	return descriptors, nil
}

// NewPublisher fans execution events out to every configured sink: the zap
// log, Kafka, or neither.
func NewPublisher(cfg *config.Config, log *zap.Logger) (eventstream.Publisher, error) {
	var publishers []eventstream.Publisher

	if cfg.EventStream.Log {
		publishers = append(publishers, zaplog.NewPublisher(log))
	}

	if len(cfg.EventStream.KafkaBrokers) > 0 {
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.KafkaBrokers,
			Topic:   cfg.EventStream.KafkaTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing execution events to kafka",
			zap.Strings("brokers", cfg.EventStream.KafkaBrokers),
			zap.String("topic", cfg.EventStream.KafkaTopic),
		)
		publishers = append(publishers, p)
	}

	if len(publishers) == 0 {
		return nop.NewPublisher(), nil
	}
	return eventstream.Multi(publishers...), nil
}

// NewEventSource identifies this process on published events.
func NewEventSource() eventstream.EventSource {
	host, _ := os.Hostname()
	return eventstream.EventSource{
		Service:  "relay",
		Instance: host,
	}
}
