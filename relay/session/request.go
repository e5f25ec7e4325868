package session

import (
	"context"
	"errors"

	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/tags"
)

var (
	// ErrQueueFull is returned by Submit when the session's queue is at
	// capacity.
	ErrQueueFull = errors.New("session queue full")

	// ErrSessionBinding is returned when a session id is reused with a
	// different persona or client.
	ErrSessionBinding = errors.New("session is bound to a different persona or client")

	// ErrManagerClosed is returned for requests submitted after Close, and
	// for queued requests discarded by Close.
	ErrManagerClosed = errors.New("session manager closed")

	// ErrSessionReclaimed ends the context of an idle session once it is
	// reclaimed. Sessions holding a request are never reclaimed.
	ErrSessionReclaimed = errors.New("session reclaimed")

	// ErrCancelled is the result of a request cancelled before it was
	// dequeued.
	ErrCancelled = errors.New("request cancelled before execution")

	// ErrInvalidRequest is returned for requests missing a session or
	// persona id.
	ErrInvalidRequest = errors.New("invalid request")
)

// Request is one conversational request.
type Request struct {
	SessionID string      `json:"session_id"`
	PersonaID string      `json:"persona_id"`
	ClientID  string      `json:"client_id"`
	Message   string      `json:"message"`
	Mode      memory.Mode `json:"mode,omitempty"`

	// Backend optionally names a backend to try first.
	Backend string `json:"backend,omitempty"`
}

// Result is the response returned to the caller.
type Result struct {
	Text             string             `json:"text"`
	BackendUsed      string             `json:"backend_used"`
	LatencyMs        int64              `json:"latency_ms"`
	MutationsApplied []tags.Mutation    `json:"mutations_applied"`
	Attempts         []dispatch.Attempt `json:"attempts,omitempty"`
	DegradedLayers   []memory.Layer     `json:"degraded_layers,omitempty"`
}

// Handler executes a dequeued request.
type Handler interface {
	Handle(ctx context.Context, req Request) (*Result, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, req Request) (*Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

func pairKey(personaID, clientID string) string {
	return personaID + "\x00" + clientID
}
