// Package tags applies memory directives embedded in persona responses.
//
// A response may carry directives such as
//
//	<memory:canonize>Ada published her notes in 1843.</memory:canonize>
//	<memory:fact key="favourite_engine">analytical</memory:fact>
//	<memory:remember>The client is debugging a loop.</memory:remember>
//
// Each well-formed directive is applied through a Mutator. Malformed or
// unknown directives are logged and skipped. Markup is removed from the
// user-visible text when stripping is enabled.
package tags

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/utils"
)

// ErrMalformedDirective marks a directive that was skipped.
var ErrMalformedDirective = errors.New("malformed memory directive")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDirective, fmt.Sprintf(format, args...))
}

// Mutator applies memory mutations. memory.Router implements it.
type Mutator interface {
	Canonize(ctx context.Context, personaID, content string) (memory.Entry, error)
	AddClientFact(ctx context.Context, clientID, personaID, key, value string) error
	AddWorkingMemory(ctx context.Context, personaID, content string) (*memory.Entry, error)
}

// Scope identifies whose memory directives apply to.
type Scope struct {
	PersonaID string
	ClientID  string
}

// Mutation is one applied directive.
type Mutation struct {
	Kind      Kind   `json:"kind"`
	PersonaID string `json:"persona_id"`
	ClientID  string `json:"client_id,omitempty"`
	Key       string `json:"key,omitempty"`
	Content   string `json:"content"`
}

// Config configures a Processor.
type Config struct {
	// Mutator applies directives. Required.
	Mutator Mutator

	// Strip removes directive markup from the returned text.
	Strip bool

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Processor scans responses for directives.
type Processor struct {
	mutator Mutator
	strip   bool
	logger  *zap.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(c Config) (*Processor, error) {
	if c.Mutator == nil {
		return nil, errors.New("tags: mutator is required")
	}
	return &Processor{
		mutator: c.Mutator,
		strip:   c.Strip,
		logger:  logger.OrNop(c.Logger),
	}, nil
}

// Process applies every well-formed directive in text and returns the
// cleaned text with the mutations that were applied, in order of
// appearance. It never fails: bad directives and mutation errors are logged
// and skipped.
func (p *Processor) Process(ctx context.Context, scope Scope, text string) (string, []Mutation) {
	directives := scan(text)
	if len(directives) == 0 {
		return text, nil
	}

	var (
		applied []Mutation
		cleaned strings.Builder
		pos     int
	)

	for _, d := range directives {
		if d.err == nil {
			m, err := p.apply(ctx, scope, d)
			if err != nil {
				d.err = fmt.Errorf("%w: %v", ErrMalformedDirective, err)
			} else {
				applied = append(applied, m)
			}
		}

		if d.err != nil {
			p.logger.Warn("skipping memory directive",
				zap.String("persona_id", scope.PersonaID),
				zap.String("kind", string(d.kind)),
				zap.Error(d.err),
			)
		}

		if !p.strip || d.literal {
			continue
		}

		cleaned.WriteString(text[pos:d.start])
		pos = d.end

		// Avoid leaving a double space where an inline directive was.
		if strings.HasSuffix(cleaned.String(), " ") {
			for pos < len(text) && (text[pos] == ' ' || text[pos] == '\t') {
				pos++
			}
		}
	}

	if !p.strip {
		return text, applied
	}

	cleaned.WriteString(text[pos:])
	return utils.CollapseBlankLines(cleaned.String()), applied
}

func (p *Processor) apply(ctx context.Context, scope Scope, d directive) (Mutation, error) {
	content := strings.TrimSpace(d.body)
	m := Mutation{
		Kind:      d.kind,
		PersonaID: scope.PersonaID,
		Content:   content,
	}

	switch d.kind {
	case KindCanonize:
		if _, err := p.mutator.Canonize(ctx, scope.PersonaID, content); err != nil {
			return m, err
		}
	case KindFact:
		m.ClientID = scope.ClientID
		m.Key = strings.TrimSpace(d.attrs["key"])
		if err := p.mutator.AddClientFact(ctx, scope.ClientID, scope.PersonaID, m.Key, content); err != nil {
			return m, err
		}
	case KindRemember:
		if _, err := p.mutator.AddWorkingMemory(ctx, scope.PersonaID, content); err != nil {
			return m, err
		}
	default:
		return m, fmt.Errorf("unknown directive kind %q", d.kind)
	}

	return m, nil
}
