// Package api provides an HTTP API server for inspecting a running relay:
// backend circuits, live sessions and memory payload previews.
package api

import (
	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/relay/session"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Dispatcher provides the backend cascade and its circuit registry.
	Dispatcher *dispatch.Dispatcher

	// Router previews memory payloads.
	Router *memory.Router

	// Sessions lists live sessions. Optional.
	Sessions *session.Manager

	// DisableMCP turns the /mcp endpoint into an empty MCP server.
	DisableMCP bool
}
