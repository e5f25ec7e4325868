package mcp

import (
	"context"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	liveSessionsToolName    = "live_sessions"
	liveSessionsDescription = "List relay's live conversation sessions with their persona, client, queued request count, whether a request is being processed and the last activity time. Optionally restrict to one persona."
)

type LiveSessionsInput struct {
	PersonaID string `json:"persona_id,omitempty" jsonschema:"optional persona id to filter on"`
}

type LiveSessionsOutput struct {
	Sessions []LiveSession `json:"sessions"`
}

type LiveSession struct {
	ID           string `json:"id"`
	PersonaID    string `json:"persona_id"`
	ClientID     string `json:"client_id,omitempty"`
	QueueDepth   int    `json:"queue_depth"`
	Busy         bool   `json:"busy"`
	LastActivity string `json:"last_activity"`
}

func (s *Server) handleLiveSessions(_ context.Context, _ *mcp.CallToolRequest, input LiveSessionsInput) (*mcp.CallToolResult, LiveSessionsOutput, error) {
	out := LiveSessionsOutput{Sessions: []LiveSession{}}
	for _, info := range s.config.Sessions.Sessions() {
		if input.PersonaID != "" && info.PersonaID != input.PersonaID {
			continue
		}
		out.Sessions = append(out.Sessions, LiveSession{
			ID:           info.ID,
			PersonaID:    info.PersonaID,
			ClientID:     info.ClientID,
			QueueDepth:   info.QueueDepth,
			Busy:         info.Busy,
			LastActivity: info.LastActivity.UTC().Format(time.RFC3339),
		})
	}
	sort.Slice(out.Sessions, func(i, j int) bool { return out.Sessions[i].ID < out.Sessions[j].ID })

	return jsonResult(out), out, nil
}
