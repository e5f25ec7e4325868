package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/memory"
)

var (
	memoryPayloadToolName    = "memory_payload"
	memoryPayloadDescription = "Preview the memory payload relay would compose for a persona and client. Returns the biography, canonical, client-fact, working-memory and history entries selected for the given context mode and backend capability, after quota truncation."
)

// MemoryPayloadInput represents the input arguments for the MCP memory_payload tool.
type MemoryPayloadInput struct {
	PersonaID  string `json:"persona_id" jsonschema:"the persona to load memory for"`
	ClientID   string `json:"client_id,omitempty" jsonschema:"the client whose facts and history are included"`
	Mode       string `json:"mode,omitempty" jsonschema:"context mode: minimal, standard or maximal"`
	Capability string `json:"capability,omitempty" jsonschema:"backend capability: small, medium or large"`
}

// MemoryPayloadOutput represents the structured output of a payload preview.
type MemoryPayloadOutput struct {
	Mode        string         `json:"mode"`
	Capability  string         `json:"capability"`
	Biography   []string       `json:"biography"`
	Canonical   []string       `json:"canonical"`
	ClientFacts []memory.Fact  `json:"client_facts"`
	Working     []string       `json:"working"`
	History     []memory.Turn  `json:"history"`
	Degraded    []string       `json:"degraded,omitempty"`
	Counts      map[string]int `json:"counts"`
}

func newMemoryPayloadOutput(p *memory.Payload) MemoryPayloadOutput {
	out := MemoryPayloadOutput{
		Mode:        string(p.Mode),
		Capability:  string(p.Capability),
		Biography:   contents(p.Biography),
		Canonical:   contents(p.Canonical),
		ClientFacts: p.ClientFacts,
		Working:     contents(p.Working),
		History:     p.History,
		Counts:      map[string]int{},
	}
	for _, l := range p.Degraded {
		out.Degraded = append(out.Degraded, string(l))
	}
	for l, n := range p.Counts() {
		out.Counts[string(l)] = n
	}
	return out
}

func contents(entries []memory.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Content)
	}
	return out
}

// handleMemoryPayload processes a memory payload request via MCP.
func (s *Server) handleMemoryPayload(ctx context.Context, _ *mcp.CallToolRequest, input MemoryPayloadInput) (*mcp.CallToolResult, MemoryPayloadOutput, error) {
	if input.PersonaID == "" {
		return toolError("persona_id is required"), MemoryPayloadOutput{}, nil
	}

	mode, err := memory.ParseMode(input.Mode)
	if err != nil {
		return toolError(err.Error()), MemoryPayloadOutput{}, nil
	}
	capability, err := memory.ParseCapability(input.Capability)
	if err != nil {
		return toolError(err.Error()), MemoryPayloadOutput{}, nil
	}

	persona, err := s.config.Router.Persona(ctx, input.PersonaID)
	if err != nil {
		return toolError(fmt.Sprintf("Loading persona failed: %v", err)), MemoryPayloadOutput{}, nil
	}

	var history []any
	if input.ClientID != "" {
		for _, t := range s.config.Router.History(ctx, input.PersonaID, input.ClientID) {
			history = append(history, t)
		}
	}

	payload := s.config.Router.Payload(ctx, memory.PayloadRequest{
		PersonaID:      input.PersonaID,
		ClientID:       input.ClientID,
		History:        history,
		Mode:           mode,
		PersonaDefault: persona.DefaultMode,
		Capability:     capability,
	})

	output := newMemoryPayloadOutput(payload)

	s.config.Logger.Debug("mcp memory payload",
		zap.String("persona_id", input.PersonaID),
		zap.String("mode", string(payload.Mode)),
	)

	return jsonResult(output), output, nil
}
