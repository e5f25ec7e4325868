package dispatch

import (
	"context"
	"time"
)

// Outcome classifies one attempt in the cascade.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeMalformed      Outcome = "malformed"
	OutcomeCircuitOpen    Outcome = "circuit_open"
	OutcomeFallback       Outcome = "fallback"

	// OutcomeCancelled marks an attempt abandoned because the caller's
	// context ended. No failure is counted.
	OutcomeCancelled Outcome = "cancelled"
)

// Record is one execution-log entry.
type Record struct {
	BackendID string
	Outcome   Outcome
	LatencyMs int64
	SessionID string
	Err       error
	Timestamp time.Time
}

// Sink receives execution-log records. Implementations must not block the
// dispatcher.
type Sink interface {
	Record(ctx context.Context, r Record)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, r Record)

// Record calls f.
func (f SinkFunc) Record(ctx context.Context, r Record) {
	f(ctx, r)
}

type nopSink struct{}

func (nopSink) Record(context.Context, Record) {}

// NopSink discards every record.
var NopSink Sink = nopSink{}
