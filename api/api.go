package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/api/mcp"
	"github.com/papercomputeco/relay/pkg/logger"
)

// Server is the API server for inspecting the relay
type Server struct {
	config Config
	logger *zap.Logger
	app    *fiber.App
	mcp    *mcp.Server
}

// NewServer creates a new API server.
// The dispatcher and router are injected to allow sharing with the relay
// server running in the same process.
func NewServer(config Config, log *zap.Logger) (*Server, error) {
	if config.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if config.Router == nil {
		return nil, errors.New("memory router is required")
	}
	log = logger.OrNop(log)

	mcpConfig := mcp.Config{
		Router:   config.Router,
		Registry: config.Dispatcher.Registry(),
		Noop:     config.DisableMCP,
		Logger:   log,
	}
	if config.Sessions != nil {
		mcpConfig.Sessions = config.Sessions
	}
	mcpServer, err := mcp.NewServer(mcpConfig)
	if err != nil {
		return nil, fmt.Errorf("could not create MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: log,
		app:    app,
		mcp:    mcpServer,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/backends", s.handleBackends)
	app.Get("/v1/sessions", s.handleSessions)
	app.Get("/v1/memory/:persona/:client?", s.handleMemoryPreview)
	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
