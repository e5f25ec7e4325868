package memory

import (
	"fmt"
	"strings"
)

// Quota caps how many items of each layer a payload may carry.
type Quota struct {
	Biography   int `json:"biography" toml:"biography"`
	Canonical   int `json:"canonical" toml:"canonical"`
	Working     int `json:"working" toml:"working"`
	ClientFacts int `json:"client_facts" toml:"client_facts"`
	History     int `json:"history" toml:"history"`
}

// QuotaKey identifies a (mode, capability) pair.
type QuotaKey struct {
	Mode       Mode
	Capability Capability
}

// String renders the key as "mode.capability", the form used in config files.
func (k QuotaKey) String() string {
	return string(k.Mode) + "." + string(k.Capability)
}

// ParseQuotaKey parses "mode.capability".
func ParseQuotaKey(s string) (QuotaKey, error) {
	modeStr, capStr, found := strings.Cut(s, ".")
	if !found {
		return QuotaKey{}, fmt.Errorf("invalid quota key %q: expected mode.capability", s)
	}

	mode, err := ParseMode(modeStr)
	if err != nil || mode == "" {
		return QuotaKey{}, fmt.Errorf("invalid quota key %q: unknown mode", s)
	}

	capability, err := ParseCapability(capStr)
	if err != nil || strings.TrimSpace(capStr) == "" {
		return QuotaKey{}, fmt.Errorf("invalid quota key %q: unknown capability", s)
	}

	return QuotaKey{Mode: mode, Capability: capability}, nil
}

// QuotaTable maps each (mode, capability) pair to its quota.
type QuotaTable map[QuotaKey]Quota

// DefaultQuotaTable returns the built-in quotas for every mode and capability.
func DefaultQuotaTable() QuotaTable {
	return QuotaTable{
		{ModeMinimal, CapabilitySmall}:   {Biography: 2, Canonical: 3, Working: 2, ClientFacts: 3, History: 4},
		{ModeMinimal, CapabilityMedium}:  {Biography: 3, Canonical: 5, Working: 3, ClientFacts: 5, History: 6},
		{ModeMinimal, CapabilityLarge}:   {Biography: 4, Canonical: 8, Working: 4, ClientFacts: 8, History: 8},
		{ModeStandard, CapabilitySmall}:  {Biography: 3, Canonical: 5, Working: 3, ClientFacts: 5, History: 6},
		{ModeStandard, CapabilityMedium}: {Biography: 5, Canonical: 10, Working: 5, ClientFacts: 10, History: 12},
		{ModeStandard, CapabilityLarge}:  {Biography: 8, Canonical: 20, Working: 8, ClientFacts: 15, History: 20},
		{ModeMaximal, CapabilitySmall}:   {Biography: 4, Canonical: 8, Working: 4, ClientFacts: 8, History: 8},
		{ModeMaximal, CapabilityMedium}:  {Biography: 8, Canonical: 20, Working: 10, ClientFacts: 20, History: 24},
		{ModeMaximal, CapabilityLarge}:   {Biography: 16, Canonical: 50, Working: 20, ClientFacts: 40, History: 50},
	}
}

// Lookup returns the quota for a pair. Pairs missing from the table fall back
// to the built-in defaults, and unknown modes or capabilities to
// standard/medium.
func (t QuotaTable) Lookup(mode Mode, capability Capability) Quota {
	key := QuotaKey{Mode: mode, Capability: capability}
	if q, ok := t[key]; ok {
		return q
	}

	defaults := DefaultQuotaTable()
	if q, ok := defaults[key]; ok {
		return q
	}

	return defaults[QuotaKey{Mode: ModeStandard, Capability: CapabilityMedium}]
}

// Merge returns a copy of t with overrides applied on top.
func (t QuotaTable) Merge(overrides QuotaTable) QuotaTable {
	out := make(QuotaTable, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
