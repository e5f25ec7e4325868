package api

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/relay"
	"github.com/papercomputeco/relay/relay/session"
)

// BackendStatus describes one backend of the cascade.
type BackendStatus struct {
	Name          string            `json:"name"`
	Priority      int               `json:"priority"`
	Capability    memory.Capability `json:"capability"`
	PreferredMode memory.Mode       `json:"preferred_mode,omitempty"`
	TokenBudget   int               `json:"token_budget"`
	Timeout       string            `json:"timeout"`
	Circuit       circuit.State     `json:"circuit"`
}

// BackendsResponse is the body of GET /v1/backends.
type BackendsResponse struct {
	Backends []BackendStatus `json:"backends"`
	Circuit  circuit.Settings `json:"circuit_settings"`
}

// SessionsResponse is the body of GET /v1/sessions.
type SessionsResponse struct {
	Sessions []session.Info `json:"sessions"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleBackends returns the cascade in priority order with circuit state.
func (s *Server) handleBackends(c *fiber.Ctx) error {
	registry := s.config.Dispatcher.Registry()
	snapshot := registry.Snapshot()

	descriptors := s.config.Dispatcher.Descriptors()
	out := BackendsResponse{
		Backends: make([]BackendStatus, 0, len(descriptors)),
		Circuit:  registry.Settings(),
	}
	for _, d := range descriptors {
		out.Backends = append(out.Backends, BackendStatus{
			Name:          d.Name(),
			Priority:      d.Priority,
			Capability:    d.Capability,
			PreferredMode: d.PreferredMode,
			TokenBudget:   d.TokenBudget,
			Timeout:       d.Timeout.String(),
			Circuit:       snapshot[d.Name()],
		})
	}

	return c.JSON(out)
}

// handleSessions lists live sessions, most recently active first.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.config.Sessions == nil {
		return c.JSON(SessionsResponse{Sessions: []session.Info{}})
	}

	infos := s.config.Sessions.Sessions()
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastActivity.After(infos[j].LastActivity)
	})

	return c.JSON(SessionsResponse{Sessions: infos})
}

// handleMemoryPreview returns the payload the router would compose for a
// persona and client.
func (s *Server) handleMemoryPreview(c *fiber.Ctx) error {
	personaID := c.Params("persona")
	clientID := c.Params("client")

	mode, err := memory.ParseMode(c.Query("mode"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(relay.ErrorResponse{Error: err.Error()})
	}
	capability, err := memory.ParseCapability(c.Query("capability"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(relay.ErrorResponse{Error: err.Error()})
	}

	ctx := c.Context()
	persona, err := s.config.Router.Persona(ctx, personaID)
	if err != nil {
		status := fiber.StatusServiceUnavailable
		if errors.Is(err, memory.ErrPersonaNotFound) {
			status = fiber.StatusNotFound
		}
		s.logger.Debug("memory preview failed", zap.String("persona_id", personaID), zap.Error(err))
		return c.Status(status).JSON(relay.ErrorResponse{Error: err.Error()})
	}

	var history []any
	if clientID != "" {
		for _, t := range s.config.Router.History(ctx, personaID, clientID) {
			history = append(history, t)
		}
	}

	payload := s.config.Router.Payload(ctx, memory.PayloadRequest{
		PersonaID:      personaID,
		ClientID:       clientID,
		History:        history,
		Mode:           mode,
		PersonaDefault: persona.DefaultMode,
		Capability:     capability,
	})

	return c.JSON(payload)
}
