// Package prompt renders persona prompts from a memory payload under a token
// budget.
package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
)

// Section headers, in render order.
const (
	headerPersona   = "# Persona"
	headerBiography = "## Biography"
	headerCanonical = "## Canonical identity"
	headerFacts     = "## Client facts"
	headerWorking   = "## Working memory"
	headerHistory   = "## Session history"
	headerMessage   = "## New message"

	emptyMarker = "(none)"
)

// PersonaCore is the fixed identity header of a persona. It is never
// truncated.
type PersonaCore struct {
	Name string
	Core string
}

// CoreOf builds a PersonaCore from a persona profile. A nil persona yields an
// empty core.
func CoreOf(p *memory.Persona) PersonaCore {
	if p == nil {
		return PersonaCore{}
	}
	return PersonaCore{Name: p.Name, Core: p.Core}
}

// Config configures a Composer.
type Config struct {
	// WordsToTokens is the token estimation factor (defaults to 1.3).
	WordsToTokens float64

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Composer renders prompts deterministically.
type Composer struct {
	factor float64
	logger *zap.Logger
}

// NewComposer creates a Composer.
func NewComposer(c Config) *Composer {
	if c.WordsToTokens <= 0 {
		c.WordsToTokens = DefaultWordsToTokens
	}
	return &Composer{
		factor: c.WordsToTokens,
		logger: logger.OrNop(c.Logger),
	}
}

// Estimate returns the token estimate for text using the composer's factor.
func (c *Composer) Estimate(text string) int {
	return EstimateTokens(text, c.factor)
}

// layers is the truncatable part of a prompt.
type layers struct {
	biography []memory.Entry
	canonical []memory.Entry
	facts     []memory.Fact
	working   []memory.Entry
	history   []memory.Turn
}

func layersOf(p *memory.Payload) layers {
	if p == nil {
		return layers{}
	}
	return layers{
		biography: p.Biography,
		canonical: p.Canonical,
		facts:     p.ClientFacts,
		working:   p.Working,
		history:   p.History,
	}
}

// dropOne removes a single entry from the lowest-priority non-empty layer.
// It reports false when every layer is empty.
func (l *layers) dropOne() (memory.Layer, bool) {
	switch {
	case len(l.history) > 0:
		l.history = l.history[1:]
		return memory.LayerHistory, true
	case len(l.working) > 0:
		l.working = l.working[1:]
		return memory.LayerWorking, true
	case len(l.facts) > 0:
		l.facts = l.facts[1:]
		return memory.LayerClientFacts, true
	case len(l.canonical) > 0:
		l.canonical = l.canonical[1:]
		return memory.LayerCanonical, true
	case len(l.biography) > 0:
		// Biography is ordered by relevance, so the tail goes first.
		l.biography = l.biography[:len(l.biography)-1]
		return memory.LayerBiography, true
	}
	return "", false
}

// Compose renders the prompt. When the estimate exceeds budget, entries are
// dropped from history, then working memory, client facts, canonical
// identity and finally biography until it fits or nothing is left. The
// persona core and the new message are always rendered in full. A
// non-positive budget disables truncation.
func (c *Composer) Compose(core PersonaCore, payload *memory.Payload, message string, budget int) string {
	l := layersOf(payload)
	out := render(core, l, message)
	if budget <= 0 {
		return out
	}

	dropped := map[memory.Layer]int{}
	for c.Estimate(out) > budget {
		layer, ok := l.dropOne()
		if !ok {
			break
		}
		dropped[layer]++
		out = render(core, l, message)
	}

	if len(dropped) > 0 {
		fields := []zap.Field{
			zap.Int("budget", budget),
			zap.Int("estimate", c.Estimate(out)),
		}
		for layer, n := range dropped {
			fields = append(fields, zap.Int("dropped_"+string(layer), n))
		}
		c.logger.Debug("truncated prompt to fit budget", fields...)
	}

	return out
}

func render(core PersonaCore, l layers, message string) string {
	var b strings.Builder

	b.WriteString(headerPersona)
	if core.Name != "" {
		b.WriteString(": ")
		b.WriteString(core.Name)
	}
	b.WriteString("\n")
	if core.Core != "" {
		b.WriteString(strings.TrimSpace(core.Core))
		b.WriteString("\n")
	}

	section(&b, headerBiography, len(l.biography), func(i int) string { return "- " + l.biography[i].Content })
	section(&b, headerCanonical, len(l.canonical), func(i int) string { return "- " + l.canonical[i].Content })
	section(&b, headerFacts, len(l.facts), func(i int) string {
		return fmt.Sprintf("- %s: %s", l.facts[i].Key, l.facts[i].Value)
	})
	section(&b, headerWorking, len(l.working), func(i int) string { return "- " + l.working[i].Content })
	section(&b, headerHistory, len(l.history), func(i int) string { return l.history[i].String() })

	b.WriteString("\n")
	b.WriteString(headerMessage)
	b.WriteString("\n")
	b.WriteString(message)
	b.WriteString("\n")

	return b.String()
}

func section(b *strings.Builder, header string, n int, line func(int) string) {
	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n")

	if n == 0 {
		b.WriteString(emptyMarker)
		b.WriteString("\n")
		return
	}
	for i := range n {
		b.WriteString(line(i))
		b.WriteString("\n")
	}
}
