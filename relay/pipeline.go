package relay

import (
	"context"
	"errors"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/backend/fallback"
	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/prompt"
	"github.com/papercomputeco/relay/pkg/tags"
	"github.com/papercomputeco/relay/relay/session"
)

// PipelineConfig wires the components a request flows through.
type PipelineConfig struct {
	Router     *memory.Router
	Composer   *prompt.Composer
	Dispatcher *dispatch.Dispatcher
	Tags       *tags.Processor

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pipeline executes one dequeued request: persona load, memory payload,
// prompt composition, backend cascade, directive processing and history
// recording. It implements session.Handler.
type Pipeline struct {
	router     *memory.Router
	composer   *prompt.Composer
	dispatcher *dispatch.Dispatcher
	tags       *tags.Processor
	logger     *zap.Logger
}

var _ session.Handler = (*Pipeline)(nil)

// NewPipeline creates a Pipeline.
func NewPipeline(c PipelineConfig) (*Pipeline, error) {
	if c.Router == nil {
		return nil, errors.New("pipeline requires a memory router")
	}
	if c.Dispatcher == nil {
		return nil, errors.New("pipeline requires a dispatcher")
	}

	p := &Pipeline{
		router:     c.Router,
		composer:   c.Composer,
		dispatcher: c.Dispatcher,
		tags:       c.Tags,
		logger:     logger.OrNop(c.Logger),
	}
	if p.composer == nil {
		p.composer = prompt.NewComposer(prompt.Config{Logger: c.Logger})
	}
	if p.tags == nil {
		processor, err := tags.NewProcessor(tags.Config{
			Mutator: c.Router,
			Strip:   true,
			Logger:  c.Logger,
		})
		if err != nil {
			return nil, err
		}
		p.tags = processor
	}

	return p, nil
}

// Handle runs the request. Only a missing persona or an unreachable store
// fail it; every backend failure is absorbed by the dispatcher.
func (p *Pipeline) Handle(ctx context.Context, req session.Request) (*session.Result, error) {
	persona, err := p.router.Persona(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}

	stored := p.router.History(ctx, req.PersonaID, req.ClientID)
	history := make([]any, 0, len(stored))
	for _, t := range stored {
		history = append(history, t)
	}

	core := prompt.CoreOf(persona)
	var degraded []memory.Layer

	compose := func(desc dispatch.Descriptor) string {
		payload := p.router.Payload(ctx, memory.PayloadRequest{
			PersonaID:      req.PersonaID,
			ClientID:       req.ClientID,
			History:        history,
			Mode:           req.Mode,
			PersonaDefault: persona.DefaultMode,
			PreferredMode:  desc.PreferredMode,
			Capability:     desc.Capability,
		})
		degraded = mergeLayers(degraded, payload.Degraded)
		return p.composer.Compose(core, payload, req.Message, desc.TokenBudget)
	}

	res := p.dispatcher.Dispatch(ctx, dispatch.Request{
		SessionID: req.SessionID,
		Override:  req.Backend,
		Compose:   compose,
	})

	text, mutations := p.tags.Process(ctx, tags.Scope{
		PersonaID: req.PersonaID,
		ClientID:  req.ClientID,
	}, res.Text)

	// A response made only of directives still answers the caller.
	if strings.TrimSpace(text) == "" {
		text = fallback.DefaultText
	}
	if mutations == nil {
		mutations = []tags.Mutation{}
	}

	p.recordHistory(ctx, req, text)

	return &session.Result{
		Text:             text,
		BackendUsed:      res.BackendUsed,
		LatencyMs:        res.LatencyMs,
		MutationsApplied: mutations,
		Attempts:         res.Attempts,
		DegradedLayers:   degraded,
	}, nil
}

// recordHistory appends the exchange to the persona+client history. Failures
// are logged; the caller still gets the response.
func (p *Pipeline) recordHistory(ctx context.Context, req session.Request, text string) {
	if req.ClientID == "" {
		return
	}

	err := p.router.AppendHistory(ctx, req.PersonaID, req.ClientID,
		memory.Turn{Role: "user", Content: req.Message},
		memory.Turn{Role: "assistant", Content: text},
	)
	if err != nil {
		p.logger.Warn("recording session history failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
	}
}

func mergeLayers(into, from []memory.Layer) []memory.Layer {
	for _, l := range from {
		if !slices.Contains(into, l) {
			into = append(into, l)
		}
	}
	return into
}
