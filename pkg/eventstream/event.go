package eventstream

import (
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDispatchAttempt is emitted for every attempt the dispatcher
	// makes, including circuit skips and the terminal fallback.
	EventTypeDispatchAttempt = "relay.dispatch.attempt"
)

// ExecutionEvent is a transport-neutral execution-log entry.
type ExecutionEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Attempt       AttemptMeta `json:"attempt"`
}

// EventSource identifies the relay instance that produced the event.
type EventSource struct {
	Service  string `json:"service"`
	Instance string `json:"instance,omitempty"`
}

// AttemptMeta captures a single dispatch attempt.
type AttemptMeta struct {
	BackendID string    `json:"backend_id"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latency_ms"`
	SessionID string    `json:"session_id,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error,omitempty"`
}
