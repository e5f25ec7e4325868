// Package dispatch runs a prompt through a prioritized cascade of backends.
//
// Each backend is guarded by a circuit breaker and probed before use. Sends
// run under a hard deadline in their own goroutine so a backend that ignores
// its context cannot stall the cascade. When every backend is exhausted the
// local fallback answers, so Dispatch always produces text.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/backend/fallback"
	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
)

// Config is the configuration for a Dispatcher.
type Config struct {
	// Descriptors is the cascade. Names must be unique.
	Descriptors []Descriptor

	// Registry holds circuit state. Defaults to a registry with default
	// settings.
	Registry *circuit.Registry

	// Fallback is the terminal backend. Defaults to fallback.New("").
	Fallback backend.Backend

	// Sink receives every attempt. Defaults to NopSink.
	Sink Sink

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Dispatcher owns the backend cascade.
type Dispatcher struct {
	descriptors []Descriptor
	registry    *circuit.Registry
	fallback    backend.Backend
	sink        Sink
	logger      *zap.Logger
}

// Request is one dispatch.
type Request struct {
	SessionID string

	// Override names a backend to try first. Unknown names are ignored.
	Override string

	// Compose renders the prompt for the backend about to be tried. It is
	// called at most once per distinct capability profile per dispatch.
	Compose func(Descriptor) string
}

// Attempt is one step of the cascade as reported to the caller.
type Attempt struct {
	Backend   string  `json:"backend"`
	Outcome   Outcome `json:"outcome"`
	LatencyMs int64   `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// Result is the outcome of a dispatch. Text is never empty.
type Result struct {
	Text        string    `json:"text"`
	BackendUsed string    `json:"backend_used"`
	LatencyMs   int64     `json:"latency_ms"`
	Attempts    []Attempt `json:"attempts"`

	// Descriptor is the descriptor of the backend that answered. It is the
	// zero value when the fallback answered.
	Descriptor Descriptor `json:"-"`
}

// New creates a Dispatcher.
func New(c Config) (*Dispatcher, error) {
	seen := make(map[string]bool, len(c.Descriptors))
	descriptors := make([]Descriptor, 0, len(c.Descriptors))

	for i, desc := range c.Descriptors {
		if desc.Backend == nil {
			return nil, fmt.Errorf("descriptor %d: backend is required", i)
		}
		name := desc.Name()
		if name == "" {
			return nil, fmt.Errorf("descriptor %d: backend name is required", i)
		}
		if name == fallback.Name {
			return nil, fmt.Errorf("descriptor %d: %q is reserved for the terminal fallback", i, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate backend %q", name)
		}
		seen[name] = true
		descriptors = append(descriptors, desc.withDefaults())
	}

	sort.SliceStable(descriptors, func(i, j int) bool {
		return descriptors[i].Priority < descriptors[j].Priority
	})

	d := &Dispatcher{
		descriptors: descriptors,
		registry:    c.Registry,
		fallback:    c.Fallback,
		sink:        c.Sink,
		logger:      logger.OrNop(c.Logger),
	}
	if d.registry == nil {
		d.registry = circuit.NewRegistry(circuit.Config{
			Settings: circuit.DefaultSettings(),
			Logger:   c.Logger,
		})
	}
	if d.fallback == nil {
		d.fallback = fallback.New("")
	}
	if d.sink == nil {
		d.sink = NopSink
	}

	for _, desc := range descriptors {
		d.registry.Register(desc.Name())
	}

	return d, nil
}

// Descriptors returns the cascade in priority order.
func (d *Dispatcher) Descriptors() []Descriptor {
	out := make([]Descriptor, len(d.descriptors))
	copy(out, d.descriptors)
	return out
}

// Registry returns the circuit registry.
func (d *Dispatcher) Registry() *circuit.Registry {
	return d.registry
}

// Close closes every backend.
func (d *Dispatcher) Close() error {
	var errs []error
	for _, desc := range d.descriptors {
		if err := desc.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", desc.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// order returns the cascade for one request, with the override first.
func (d *Dispatcher) order(override string) []Descriptor {
	if override == "" {
		return d.descriptors
	}

	out := make([]Descriptor, 0, len(d.descriptors))
	for _, desc := range d.descriptors {
		if desc.Name() == override {
			out = append(out, desc)
		}
	}
	if len(out) == 0 {
		d.logger.Warn("ignoring unknown backend override", zap.String("backend", override))
		return d.descriptors
	}

	for _, desc := range d.descriptors {
		if desc.Name() != override {
			out = append(out, desc)
		}
	}
	return out
}

type composeKey struct {
	capability memory.Capability
	mode       memory.Mode
	budget     int
}

// Dispatch runs the cascade and always returns a result with non-empty text.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) *Result {
	start := time.Now()
	result := &Result{}

	prompts := map[composeKey]string{}
	promptFor := func(desc Descriptor) string {
		if req.Compose == nil {
			return ""
		}
		k := composeKey{capability: desc.Capability, mode: desc.PreferredMode, budget: desc.TokenBudget}
		if p, ok := prompts[k]; ok {
			return p
		}
		p := req.Compose(desc)
		prompts[k] = p
		return p
	}

	for _, desc := range d.order(req.Override) {
		if ctx.Err() != nil {
			break
		}

		text, ok := d.attempt(ctx, req.SessionID, desc, promptFor, result)
		if ok {
			result.Text = text
			result.BackendUsed = desc.Name()
			result.Descriptor = desc
			result.LatencyMs = time.Since(start).Milliseconds()
			return result
		}
	}

	d.useFallback(ctx, req.SessionID, result)
	result.LatencyMs = time.Since(start).Milliseconds()
	return result
}

// attempt tries a single backend and reports whether it produced text.
func (d *Dispatcher) attempt(ctx context.Context, sessionID string, desc Descriptor, promptFor func(Descriptor) string, result *Result) (string, bool) {
	id := desc.Name()
	start := time.Now()

	record := func(outcome Outcome, err error) {
		latency := time.Since(start).Milliseconds()
		d.record(ctx, result, Record{
			BackendID: id,
			Outcome:   outcome,
			LatencyMs: latency,
			SessionID: sessionID,
			Err:       err,
			Timestamp: start,
		})
	}

	permit := d.registry.Acquire(id)
	if !permit.Allowed {
		record(OutcomeCircuitOpen, circuit.ErrOpen)
		return "", false
	}

	if !d.probe(ctx, desc) {
		if ctx.Err() != nil {
			d.abandon(id, permit)
			record(OutcomeCancelled, ctx.Err())
			return "", false
		}
		d.registry.RecordFailure(id, permit)
		record(OutcomeUnavailable, ErrBackendUnavailable)
		return "", false
	}

	text, err := d.send(ctx, desc, promptFor(desc))
	if err != nil {
		if ctx.Err() != nil {
			d.abandon(id, permit)
			record(OutcomeCancelled, ctx.Err())
			return "", false
		}
		d.registry.RecordFailure(id, permit)
		record(classify(err), err)
		return "", false
	}

	d.registry.RecordSuccess(id, permit)
	record(OutcomeSuccess, nil)
	return text, true
}

func (d *Dispatcher) abandon(id string, permit circuit.Permit) {
	if permit.Trial {
		d.registry.Release(id, permit)
	}
}

func classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrBackendTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrMalformedOutput), errors.Is(err, backend.ErrMalformed):
		return OutcomeMalformed
	default:
		return OutcomeTransportError
	}
}

// probe runs IsAvailable under the probe timeout. A probe that overruns
// counts as unavailable.
func (d *Dispatcher) probe(ctx context.Context, desc Descriptor) bool {
	ctx, cancel := context.WithTimeout(ctx, desc.ProbeTimeout)
	defer cancel()

	ch := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("backend probe panicked",
					zap.String("backend", desc.Name()),
					zap.Any("panic", r),
				)
				ch <- false
			}
		}()
		ch <- desc.Backend.IsAvailable(ctx)
	}()

	select {
	case ok := <-ch:
		return ok
	case <-ctx.Done():
		return false
	}
}

type sendResult struct {
	text string
	err  error
}

// send runs Send under the hard timeout. The backend goroutine is not
// waited for once the deadline passes.
func (d *Dispatcher) send(ctx context.Context, desc Descriptor, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, desc.Timeout)
	defer cancel()

	ch := make(chan sendResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- sendResult{err: fmt.Errorf("%w: backend panicked: %v", backend.ErrTransport, r)}
			}
		}()
		text, err := desc.Backend.Send(ctx, prompt)
		ch <- sendResult{text: text, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
				return "", fmt.Errorf("%w after %s", ErrBackendTimeout, desc.Timeout)
			}
			return "", r.err
		}
		text := strings.TrimSpace(r.text)
		if text == "" {
			return "", ErrMalformedOutput
		}
		return text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w after %s", ErrBackendTimeout, desc.Timeout)
	}
}

func (d *Dispatcher) useFallback(ctx context.Context, sessionID string, result *Result) {
	start := time.Now()

	// The fallback is local and must answer even when the caller's context
	// has ended.
	text, err := d.fallback.Send(context.WithoutCancel(ctx), "")
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		d.logger.Error("fallback backend failed, using default text", zap.Error(err))
		text = fallback.DefaultText
	}

	d.logger.Warn("all backends exhausted, answering with fallback",
		zap.String("session_id", sessionID),
		zap.Int("attempts", len(result.Attempts)),
	)

	d.record(ctx, result, Record{
		BackendID: fallback.Name,
		Outcome:   OutcomeFallback,
		LatencyMs: time.Since(start).Milliseconds(),
		SessionID: sessionID,
		Err:       ErrExhausted,
		Timestamp: start,
	})

	result.Text = text
	result.BackendUsed = fallback.Name
}

func (d *Dispatcher) record(ctx context.Context, result *Result, r Record) {
	a := Attempt{
		Backend:   r.BackendID,
		Outcome:   r.Outcome,
		LatencyMs: r.LatencyMs,
	}
	if r.Err != nil {
		a.Error = r.Err.Error()
	}
	result.Attempts = append(result.Attempts, a)

	fields := []zap.Field{
		zap.String("backend", r.BackendID),
		zap.String("outcome", string(r.Outcome)),
		zap.Int64("latency_ms", r.LatencyMs),
		zap.String("session_id", r.SessionID),
	}
	switch r.Outcome {
	case OutcomeSuccess, OutcomeCircuitOpen, OutcomeFallback:
		d.logger.Debug("dispatch attempt", fields...)
	default:
		d.logger.Warn("dispatch attempt failed", append(fields, zap.Error(r.Err))...)
	}

	d.sink.Record(ctx, r)
}
