package dispatch

import (
	"time"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/memory"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultProbeTimeout = 2 * time.Second
	DefaultTokenBudget  = 4096
)

// Descriptor describes one backend in the cascade.
type Descriptor struct {
	Backend backend.Backend

	// Priority orders the cascade; lower runs first.
	Priority int

	// Timeout bounds a single send.
	Timeout time.Duration

	// ProbeTimeout bounds the availability probe.
	ProbeTimeout time.Duration

	// Capability selects the memory quota profile.
	Capability memory.Capability

	// PreferredMode is used when neither the caller nor the persona picks a
	// mode.
	PreferredMode memory.Mode

	// TokenBudget is the prompt budget handed to the composer.
	TokenBudget int
}

// Name returns the backend id.
func (d Descriptor) Name() string {
	return d.Backend.Name()
}

func (d Descriptor) withDefaults() Descriptor {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = DefaultProbeTimeout
	}
	if d.Capability == "" {
		d.Capability = memory.CapabilityMedium
	}
	if d.TokenBudget <= 0 {
		d.TokenBudget = DefaultTokenBudget
	}
	return d
}
