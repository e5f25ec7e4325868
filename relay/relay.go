// Package relay provides the HTTP front door of the persona relay. Requests
// are queued per session and executed by a Pipeline that composes memory
// into a prompt, runs the backend cascade and applies memory directives from
// the response.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/relay/session"
)

// Server is the relay HTTP server.
type Server struct {
	config   Config
	pipeline *Pipeline
	sessions *session.Manager
	logger   *zap.Logger
	server   *fiber.App
}

// New creates a new Server and its session manager.
func New(config Config, pipeline *Pipeline, log *zap.Logger) (*Server, error) {
	if pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaultRequestTimeout
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	log = logger.OrNop(log)

	sc := config.Sessions
	sc.Handler = pipeline
	sc.Logger = log
	sessions, err := session.NewManager(sc)
	if err != nil {
		return nil, fmt.Errorf("could not create session manager: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		pipeline: pipeline,
		sessions: sessions,
		logger:   log,
		server:   app,
	}

	app.Post("/v1/respond", s.handleRespond)
	app.Delete("/v1/sessions/:id/pending", s.handleCancelPending)

	return s, nil
}

// Sessions returns the session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.server
}

// Run starts the relay server on the configured listening address
func (s *Server) Run() error {
	s.logger.Info("starting relay server",
		zap.String("listen", s.config.ListenAddr),
	)

	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting relay server",
		zap.String("listen", listener.Addr().String()),
	)

	return s.server.Listener(listener)
}

// Close stops accepting connections, then drains the session manager.
func (s *Server) Close() error {
	shutdownErr := s.server.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	return errors.Join(shutdownErr, s.sessions.Close(ctx))
}
