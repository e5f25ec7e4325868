// Package memory provides the layered persona memory used to build relay
// prompts.
//
// Memory is split into five layers. Biography, canonical and working memory
// belong to a persona; client facts and session history belong to a
// persona+client pair:
//
//	biography    core biography entries, ordered by the store by relevance
//	canonical    permanent facts/events, append-only
//	client_facts per-client key/value facts
//	working      short-term observations, bounded FIFO
//	history      normalized {role, content} conversation turns
//
// The [Store] interface is the narrow adapter to whatever persistence backend
// holds the layers. The [Router] composes a bounded [Payload] from a Store for a
// given context mode and backend capability, and applies the mutations that
// the tag post-processor extracts from responses.
package memory

import (
	"fmt"
	"strings"
	"time"
)

// Layer names one of the five memory layers.
type Layer string

const (
	LayerBiography   Layer = "biography"
	LayerCanonical   Layer = "canonical"
	LayerClientFacts Layer = "client_facts"
	LayerWorking     Layer = "working"
	LayerHistory     Layer = "history"
)

// Layers lists every layer in composition priority order.
func Layers() []Layer {
	return []Layer{LayerBiography, LayerCanonical, LayerClientFacts, LayerWorking, LayerHistory}
}

// ClientScoped reports whether the layer is partitioned by client as well as
// persona. Persona-scoped layers ignore the client id.
func (l Layer) ClientScoped() bool {
	return l == LayerClientFacts || l == LayerHistory
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerBiography, LayerCanonical, LayerClientFacts, LayerWorking, LayerHistory:
		return true
	}
	return false
}

// ScopeClient returns the client id a store should key the layer under.
func ScopeClient(layer Layer, clientID string) string {
	if layer.ClientScoped() {
		return clientID
	}
	return ""
}

// Mode is a named preset controlling how much of each layer is included.
type Mode string

const (
	ModeMinimal  Mode = "minimal"
	ModeStandard Mode = "standard"
	ModeMaximal  Mode = "maximal"
)

// Modes returns all supported context modes.
func Modes() []Mode {
	return []Mode{ModeMinimal, ModeStandard, ModeMaximal}
}

// ParseMode parses a mode name. The empty string parses to the empty Mode,
// which means "unset" during mode resolution.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "", ModeMinimal, ModeStandard, ModeMaximal:
		return m, nil
	}
	return "", fmt.Errorf("unknown context mode: %q (supported: %v)", s, Modes())
}

// Capability describes how much context a backend can take.
type Capability string

const (
	CapabilitySmall  Capability = "small"
	CapabilityMedium Capability = "medium"
	CapabilityLarge  Capability = "large"
)

// Capabilities returns all supported backend capability profiles.
func Capabilities() []Capability {
	return []Capability{CapabilitySmall, CapabilityMedium, CapabilityLarge}
}

// ParseCapability parses a capability name, defaulting to medium when empty.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "":
		return CapabilityMedium, nil
	case CapabilitySmall, CapabilityMedium, CapabilityLarge:
		return c, nil
	}
	return "", fmt.Errorf("unknown backend capability: %q (supported: %v)", s, Capabilities())
}

// ResolveMode picks the effective context mode: an explicit caller override
// wins over the persona's configured default, which wins over the backend's
// preferred mode. Standard is used when none are set.
func ResolveMode(override, personaDefault, backendPreferred Mode) Mode {
	for _, m := range []Mode{override, personaDefault, backendPreferred} {
		if m != "" {
			return m
		}
	}
	return ModeStandard
}

// Persona is the identity profile a backend is asked to play.
type Persona struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Core        string `json:"core" toml:"core"`
	DefaultMode Mode   `json:"default_mode,omitempty" toml:"default_mode,omitempty"`
}

// Entry is a single stored memory item. Key is only set for client facts and
// Role only for history turns.
type Entry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key,omitempty"`
	Role      string    `json:"role,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact is a per-client key/value fact.
type Fact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Turn is one normalized conversation turn.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// String renders the turn as "role: content".
func (t Turn) String() string {
	return t.Role + ": " + t.Content
}

// Payload is the bounded memory aggregate handed to the prompt composer.
type Payload struct {
	Mode       Mode       `json:"mode"`
	Capability Capability `json:"capability"`
	Quota      Quota      `json:"quota"`

	Biography   []Entry `json:"biography"`
	Canonical   []Entry `json:"canonical"`
	ClientFacts []Fact  `json:"client_facts"`
	Working     []Entry `json:"working"`
	History     []Turn  `json:"history"`

	// Degraded lists layers whose read failed and were treated as empty.
	Degraded []Layer `json:"degraded,omitempty"`
}

// Counts returns the number of items per layer.
func (p *Payload) Counts() map[Layer]int {
	if p == nil {
		return map[Layer]int{}
	}
	return map[Layer]int{
		LayerBiography:   len(p.Biography),
		LayerCanonical:   len(p.Canonical),
		LayerClientFacts: len(p.ClientFacts),
		LayerWorking:     len(p.Working),
		LayerHistory:     len(p.History),
	}
}
