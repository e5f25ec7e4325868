// Package mcp serves relay's introspection tools over the Model Context
// Protocol: memory payload previews, circuit state and live sessions.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/utils"
	"github.com/papercomputeco/relay/relay/session"
)

// SessionLister reports live sessions.
type SessionLister interface {
	Sessions() []session.Info
}

type Config struct {
	Router   *memory.Router
	Registry *circuit.Registry

	// Sessions backs the live_sessions tool, which is left out when nil.
	Sessions SessionLister

	// Noop serves an MCP server with no tools.
	Noop bool

	Logger *zap.Logger
}

type Server struct {
	config  Config
	handler http.Handler
}

// NewServer builds the MCP server and its stateless streamable HTTP handler.
func NewServer(c Config) (*Server, error) {
	if !c.Noop {
		switch {
		case c.Router == nil:
			return nil, errors.New("memory router is required")
		case c.Registry == nil:
			return nil, errors.New("circuit registry is required")
		case c.Logger == nil:
			return nil, errors.New("logger is required")
		}
	}

	s := &Server{config: c}

	srv := mcp.NewServer(&mcp.Implementation{Name: "relay", Version: utils.Version}, &mcp.ServerOptions{})
	if !c.Noop {
		s.addTools(srv)
	}

	s.handler = mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Stateless: true},
	)
	return s, nil
}

func (s *Server) addTools(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        memoryPayloadToolName,
		Description: memoryPayloadDescription,
	}, s.handleMemoryPayload)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        circuitStatusToolName,
		Description: circuitStatusDescription,
	}, s.handleCircuitStatus)

	if s.config.Sessions != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        liveSessionsToolName,
			Description: liveSessionsDescription,
		}, s.handleLiveSessions)
	}
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// jsonResult mirrors structured output as text content for clients that
// ignore structured results.
func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return toolError(fmt.Sprintf("serializing result: %v", err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func toolError(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
