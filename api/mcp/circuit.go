package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/relay/pkg/circuit"
)

var (
	circuitStatusToolName    = "circuit_status"
	circuitStatusDescription = "Report the circuit breaker state of relay's response backends: closed, open or half_open, with consecutive failures and when the circuit opened. Optionally restrict to one backend."
)

// CircuitStatusInput represents the input arguments for the MCP circuit_status tool.
type CircuitStatusInput struct {
	Backend string `json:"backend,omitempty" jsonschema:"optional backend name to report on"`
}

// CircuitStatusOutput represents the structured output of a circuit status request.
type CircuitStatusOutput struct {
	Backends map[string]CircuitState `json:"backends"`
}

// CircuitState is one backend's breaker state.
type CircuitState struct {
	Status              string `json:"status"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	OpenedAt            string `json:"opened_at,omitempty"`
	TrialInFlight       bool   `json:"trial_in_flight"`
}

func newCircuitState(st circuit.State) CircuitState {
	out := CircuitState{
		Status:              string(st.Status),
		ConsecutiveFailures: st.ConsecutiveFailures,
		TrialInFlight:       st.TrialInFlight,
	}
	if !st.OpenedAt.IsZero() {
		out.OpenedAt = st.OpenedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// handleCircuitStatus processes a circuit status request via MCP.
func (s *Server) handleCircuitStatus(_ context.Context, _ *mcp.CallToolRequest, input CircuitStatusInput) (*mcp.CallToolResult, CircuitStatusOutput, error) {
	snapshot := s.config.Registry.Snapshot()

	if input.Backend != "" {
		state, ok := snapshot[input.Backend]
		if !ok {
			return toolError(fmt.Sprintf("unknown backend %q", input.Backend)), CircuitStatusOutput{}, nil
		}
		snapshot = map[string]circuit.State{input.Backend: state}
	}

	output := CircuitStatusOutput{Backends: make(map[string]CircuitState, len(snapshot))}
	for id, st := range snapshot {
		output.Backends[id] = newCircuitState(st)
	}

	return jsonResult(output), output, nil
}
