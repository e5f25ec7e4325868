package circuit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/logger"
)

// Config is the configuration for a Registry.
type Config struct {
	Settings Settings

	// Clock defaults to time.Now.
	Clock Clock

	// Logger is the provided zap logger
	Logger *zap.Logger
}

type breaker struct {
	mu    sync.Mutex
	state State

	// trial numbers the half-open trials granted so far; only the permit of
	// the latest one may move a breaker that is not closed.
	trial uint64
}

// current reports whether p may change the state of a breaker that is not
// closed. Must be called with b.mu held.
func (b *breaker) current(p Permit) bool {
	return p.Trial && p.trial == b.trial && b.state.TrialInFlight
}

// Registry owns the breakers of every backend. Each breaker is guarded by
// its own mutex so updates for one backend never contend with another.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*breaker
	settings Settings

	clock  Clock
	logger *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(c Config) *Registry {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return &Registry{
		breakers: make(map[string]*breaker),
		settings: c.Settings.withDefaults(),
		clock:    c.Clock,
		logger:   logger.OrNop(c.Logger),
	}
}

// Register ensures a closed breaker exists for id.
func (r *Registry) Register(id string) {
	r.get(id)
}

func (r *Registry) get(id string) *breaker {
	r.mu.RLock()
	b, ok := r.breakers[id]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[id]; ok {
		return b
	}
	b = &breaker{state: State{Status: StatusClosed}}
	r.breakers[id] = b
	return b
}

// Settings returns the current breaker settings.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings replaces the breaker settings. Existing breakers keep their
// state; the new values apply from their next transition.
func (r *Registry) UpdateSettings(s Settings) {
	s = s.withDefaults()

	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()

	r.logger.Info("updated circuit settings",
		zap.Int("threshold", s.Threshold),
		zap.Duration("cooldown", s.Cooldown),
	)
}

// Acquire decides whether id may be attempted now. An open breaker whose
// cooldown has elapsed moves to half-open and grants one trial; every other
// caller is refused until that trial is recorded.
func (r *Registry) Acquire(id string) Permit {
	settings := r.Settings()
	b := r.get(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state.Status {
	case StatusOpen:
		if r.clock().Sub(b.state.OpenedAt) < settings.Cooldown {
			return Permit{State: b.state}
		}
		r.transition(id, b, StatusHalfOpen)
		return b.grantTrial()

	case StatusHalfOpen:
		if b.state.TrialInFlight {
			return Permit{State: b.state}
		}
		return b.grantTrial()
	}

	return Permit{Allowed: true, State: b.state}
}

// grantTrial must be called with b.mu held.
func (b *breaker) grantTrial() Permit {
	b.trial++
	b.state.TrialInFlight = true
	return Permit{Allowed: true, Trial: true, State: b.state, trial: b.trial}
}

// RecordSuccess reports a successful attempt made under p. It resets the
// failure count and closes a half-open breaker. While the breaker is not
// closed only the current trial's outcome counts; late outcomes of attempts
// acquired earlier are ignored.
func (r *Registry) RecordSuccess(id string, p Permit) State {
	b := r.get(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Status != StatusClosed {
		if !b.current(p) {
			r.logStale(id, b, "success")
			return b.state
		}
		b.state.ConsecutiveFailures = 0
		b.state.TrialInFlight = false
		r.transition(id, b, StatusClosed)
		b.state.OpenedAt = time.Time{}
		return b.state
	}

	b.state.ConsecutiveFailures = 0
	return b.state
}

// RecordFailure reports a failed attempt made under p. A failed half-open
// trial re-opens the breaker; a closed breaker opens once failures reach
// the threshold. Late failures against a breaker that is not closed are
// ignored.
func (r *Registry) RecordFailure(id string, p Permit) State {
	settings := r.Settings()
	b := r.get(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Status != StatusClosed {
		if !b.current(p) {
			r.logStale(id, b, "failure")
			return b.state
		}
		b.state.ConsecutiveFailures++
		b.state.TrialInFlight = false
		r.transition(id, b, StatusOpen)
		b.state.OpenedAt = r.clock()
		return b.state
	}

	b.state.ConsecutiveFailures++
	if b.state.ConsecutiveFailures >= settings.Threshold {
		r.transition(id, b, StatusOpen)
		b.state.OpenedAt = r.clock()
	}
	return b.state
}

// Release gives back the half-open trial held by p without recording an
// outcome, for attempts abandoned because the caller went away.
func (r *Registry) Release(id string, p Permit) {
	b := r.get(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current(p) {
		b.state.TrialInFlight = false
	}
}

func (r *Registry) logStale(id string, b *breaker, outcome string) {
	r.logger.Debug("ignoring stale circuit outcome",
		zap.String("backend", id),
		zap.String("outcome", outcome),
		zap.String("status", string(b.state.Status)),
	)
}

// State returns a copy of the breaker state for id.
func (r *Registry) State(id string) State {
	b := r.get(id)

	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Snapshot returns a copy of every breaker's state keyed by backend id.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	ids := make([]string, 0, len(r.breakers))
	for id := range r.breakers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[string]State, len(ids))
	for _, id := range ids {
		out[id] = r.State(id)
	}
	return out
}

// transition must be called with b.mu held.
func (r *Registry) transition(id string, b *breaker, to Status) {
	from := b.state.Status
	b.state.Status = to

	r.logger.Info("circuit transition",
		zap.String("backend", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("consecutive_failures", b.state.ConsecutiveFailures),
	)
}
