// Package servecmder provides the serve command that runs the relay and API
// servers.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/api"
	"github.com/papercomputeco/relay/pkg/backend/fallback"
	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/credentials"
	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/prompt"
	"github.com/papercomputeco/relay/pkg/tags"
	"github.com/papercomputeco/relay/relay"
	"github.com/papercomputeco/relay/relay/session"
	"github.com/papercomputeco/relay/relay/worker"
)

type ServeCommander struct {
	configDir string
	debug     bool
	jsonLogs  bool
	logFile   string

	relayListen    string
	apiListen      string
	memoryProvider string
	sqlitePath     string
	postgresDSN    string
	memoryCache    bool
	kafkaBrokers   string
	kafkaTopic     string
	disableMCP     bool

	viper  *viper.Viper
	logger *zap.Logger
}

const serveLongDesc string = `Run the relay and API servers.

The relay server accepts dispatch requests on POST /v1/respond and runs them
through the persona's session queue, memory router, prompt composer and the
backend cascade. The API server exposes backend circuits, live sessions,
memory previews and an MCP endpoint.

Configuration is read from config.toml in the .relay/ directory, then
RELAY_* environment variables, then flags. Circuit settings in config.toml
are reloaded while the server runs.

Examples:
  relay serve
  relay serve --memory sqlite --sqlite ./relay.db
  relay serve --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the relay and API servers"

var serveFlags = []string{
	config.FlagRelayListen,
	config.FlagAPIListen,
	config.FlagMemoryProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagMemoryCache,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagDisableMCP,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, serveFlags)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagRelayListen, &cmder.relayListen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryProvider, &cmder.memoryProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddBoolFlag(cmd, config.Flags, config.FlagMemoryCache, &cmder.memoryCache)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddBoolFlag(cmd, config.Flags, config.FlagDisableMCP, &cmder.disableMCP)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Write logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var closeLog func()
	var err error
	c.logger, closeLog, err = newLogger(c.debug, c.jsonLogs, c.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, dir, err := config.Load(c.configDir, c.viper)
	if err != nil {
		return err
	}

	store, err := NewStore(ctx, cfg, dir, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	settings, err := cfg.CircuitSettings()
	if err != nil {
		return err
	}
	registry := circuit.NewRegistry(circuit.Config{
		Settings: settings,
		Logger:   c.logger,
	})

	publisher, err := NewPublisher(cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		Publisher:  publisher,
		Source:     NewEventSource(),
		NumWorkers: uint(cfg.EventStream.Workers),
		QueueSize:  uint(cfg.EventStream.QueueSize),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating execution log pool: %w", err)
	}
	defer pool.Close()

	creds, err := credentials.NewManager(c.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	descriptors, err := NewDescriptors(ctx, cfg, creds, c.logger)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Descriptors: descriptors,
		Registry:    registry,
		Fallback:    fallback.New(cfg.Fallback.Text),
		Sink:        pool,
		Logger:      c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer dispatcher.Close()

	quotas, err := cfg.QuotaTable()
	if err != nil {
		return err
	}
	router, err := memory.NewRouter(memory.RouterConfig{
		Store:           store,
		Quotas:          quotas,
		WorkingCapacity: cfg.Memory.WorkingCapacity,
		HistoryCapacity: cfg.Memory.HistoryCapacity,
		Logger:          c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating memory router: %w", err)
	}

	processor, err := tags.NewProcessor(tags.Config{
		Mutator: router,
		Strip:   true,
		Logger:  c.logger,
	})
	if err != nil {
		return err
	}

	pipeline, err := relay.NewPipeline(relay.PipelineConfig{
		Router: router,
		Composer: prompt.NewComposer(prompt.Config{
			WordsToTokens: cfg.Prompt.WordsToTokens,
			Logger:        c.logger,
		}),
		Dispatcher: dispatcher,
		Tags:       processor,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	relayConfig, err := newRelayConfig(cfg, c.logger)
	if err != nil {
		return err
	}
	relayServer, err := relay.New(relayConfig, pipeline, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		Dispatcher: dispatcher,
		Router:     router,
		Sessions:   relayServer.Sessions(),
		DisableMCP: cfg.API.DisableMCP,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	err = config.WatchCircuit(c.viper, c.logger, registry.UpdateSettings)
	switch {
	case errors.Is(err, config.ErrNoConfigFile):
		c.logger.Debug("no config file, circuit settings will not reload")
	case err != nil:
		return err
	}

	c.logger.Info("starting relay",
		zap.String("relay_addr", cfg.Relay.Listen),
		zap.String("api_addr", cfg.API.Listen),
		zap.Int("backends", len(descriptors)),
		zap.String("memory", cfg.Memory.Provider),
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := relayServer.Run(); err != nil {
			errChan <- fmt.Errorf("relay server error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	// The API server goes first so nothing inspects sessions that are
	// draining; the relay server then finishes in-flight requests before the
	// deferred pool, dispatcher and store closes run.
	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("api server shutdown failed", zap.Error(err))
	}
	if err := relayServer.Close(); err != nil {
		c.logger.Warn("relay server shutdown failed", zap.Error(err))
	}

	return runErr
}

// newLogger builds the console logger and, with a log file, tees it into a
// JSON logger appending to that file.
func newLogger(debug, jsonLogs bool, logFile string) (*zap.Logger, func(), error) {
	console := logger.New(logger.WithDebug(debug), logger.WithJSON(jsonLogs))
	if logFile == "" {
		return console, func() { _ = console.Sync() }, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(debug), logger.WithJSON(true), logger.WithWriter(f))

	l := logger.Multi(console, file)
	return l, func() {
		_ = l.Sync()
		_ = f.Close()
	}, nil
}

func newRelayConfig(cfg *config.Config, log *zap.Logger) (relay.Config, error) {
	requestTimeout, err := config.ParseDuration("relay.request_timeout", cfg.Relay.RequestTimeout)
	if err != nil {
		return relay.Config{}, err
	}
	shutdownTimeout, err := config.ParseDuration("relay.shutdown_timeout", cfg.Relay.ShutdownTimeout)
	if err != nil {
		return relay.Config{}, err
	}
	idleTimeout, err := config.ParseDuration("sessions.idle_timeout", cfg.Sessions.IdleTimeout)
	if err != nil {
		return relay.Config{}, err
	}

	return relay.Config{
		ListenAddr: cfg.Relay.Listen,
		Sessions: session.Config{
			MaxConcurrent: cfg.Sessions.MaxConcurrent,
			QueueSize:     cfg.Sessions.QueueSize,
			IdleTimeout:   idleTimeout,
			Logger:        log,
		},
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
	}, nil
}
