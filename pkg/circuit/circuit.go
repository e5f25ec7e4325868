// Package circuit tracks per-backend circuit breakers.
//
// A breaker starts closed. Consecutive failures reaching the threshold open
// it; once the cooldown has elapsed the next caller is granted a single
// half-open trial whose outcome either closes or re-opens the breaker.
package circuit

import (
	"errors"
	"time"
)

// ErrOpen is reported for backends skipped because their circuit is open.
var ErrOpen = errors.New("circuit open")

// Status is a breaker state.
type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half_open"
)

// State is a point-in-time view of one breaker.
type State struct {
	Status              Status    `json:"status"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
	TrialInFlight       bool      `json:"trial_in_flight"`
}

// Settings are the breaker parameters shared by every backend.
type Settings struct {
	// Threshold is the number of consecutive failures that opens a breaker.
	Threshold int `json:"threshold"`

	// Cooldown is how long a breaker stays open before a trial is allowed.
	Cooldown time.Duration `json:"cooldown"`
}

const (
	DefaultThreshold = 3
	DefaultCooldown  = 30 * time.Second
)

// DefaultSettings returns the default breaker settings.
func DefaultSettings() Settings {
	return Settings{
		Threshold: DefaultThreshold,
		Cooldown:  DefaultCooldown,
	}
}

func (s Settings) withDefaults() Settings {
	if s.Threshold <= 0 {
		s.Threshold = DefaultThreshold
	}
	if s.Cooldown < 0 {
		s.Cooldown = 0
	}
	return s
}

// Clock returns the current time.
type Clock func() time.Time

// Permit is the result of Acquire.
type Permit struct {
	// Allowed is false when the breaker is open (or a half-open trial is
	// already running) and the backend must be skipped.
	Allowed bool

	// Trial is true when this caller holds the single half-open trial.
	Trial bool

	// State is the breaker state after the decision.
	State State

	// trial identifies the half-open trial this permit holds.
	trial uint64
}
