package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/utils"
)

const (
	defaultWorkingCapacity = 20
	defaultHistoryCapacity = 200
)

// RouterConfig is the configuration for a Router.
type RouterConfig struct {
	// Store is the memory store adapter. Required.
	Store Store

	// Quotas maps (mode, capability) pairs to per-layer caps. Missing pairs
	// fall back to DefaultQuotaTable.
	Quotas QuotaTable

	// WorkingCapacity bounds each persona's working memory FIFO (defaults to 20).
	WorkingCapacity int

	// HistoryCapacity bounds the stored session history per persona+client
	// (defaults to 200). Older turns are trimmed on append.
	HistoryCapacity int

	// Logger is the provided zap logger
	Logger *zap.Logger

	// Now overrides the clock used to timestamp entries (defaults to time.Now).
	Now func() time.Time
}

// PayloadRequest selects what the Router loads for one composition.
type PayloadRequest struct {
	PersonaID string
	ClientID  string

	// History is the session history in any representation accepted by
	// NormalizeSessionHistory.
	History []any

	// Mode is the explicit caller override, if any.
	Mode Mode

	// PersonaDefault is the persona's configured default mode, if any.
	PersonaDefault Mode

	// PreferredMode is the target backend's preferred mode, if any.
	PreferredMode Mode

	// Capability is the target backend's capability profile.
	Capability Capability
}

// Router composes bounded payloads from a Store and applies memory mutations.
// Mutations are serialized per persona so concurrent writers never lose
// working-memory updates.
type Router struct {
	store           Store
	quotas          QuotaTable
	workingCapacity int
	historyCapacity int
	logger          *zap.Logger
	now             func() time.Time

	locks *utils.KeyedMutex
}

// NewRouter creates a Router.
func NewRouter(c RouterConfig) (*Router, error) {
	if c.Store == nil {
		return nil, errors.New("memory store is required")
	}

	if c.WorkingCapacity <= 0 {
		c.WorkingCapacity = defaultWorkingCapacity
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}
	if c.Quotas == nil {
		c.Quotas = DefaultQuotaTable()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Router{
		store:           c.Store,
		quotas:          c.Quotas,
		workingCapacity: c.WorkingCapacity,
		historyCapacity: c.HistoryCapacity,
		logger:          c.Logger,
		now:             c.Now,
		locks:           utils.NewKeyedMutex(),
	}, nil
}

// Store returns the underlying store adapter.
func (r *Router) Store() Store {
	return r.store
}

// WorkingCapacity returns the configured working-memory capacity.
func (r *Router) WorkingCapacity() int {
	return r.workingCapacity
}

// Persona performs the initial persona load for a request. A missing persona
// returns ErrPersonaNotFound; any other store failure returns
// ErrStoreUnavailable, since nothing sensible can be composed without the
// persona.
func (r *Router) Persona(ctx context.Context, personaID string) (*Persona, error) {
	if personaID == "" {
		return nil, fmt.Errorf("%w: empty persona id", ErrPersonaNotFound)
	}

	p, err := r.store.ReadPersona(ctx, personaID)
	if err != nil {
		if errors.Is(err, ErrPersonaNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
		}
		return nil, fmt.Errorf("%w: loading persona %s: %v", ErrStoreUnavailable, personaID, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, personaID)
	}

	return p, nil
}

// Payload loads every layer for the request, truncated to the quota of the
// effective (mode, capability). A layer whose read fails is treated as empty
// and reported in Payload.Degraded.
func (r *Router) Payload(ctx context.Context, req PayloadRequest) *Payload {
	mode := ResolveMode(req.Mode, req.PersonaDefault, req.PreferredMode)
	capability := req.Capability
	if capability == "" {
		capability = CapabilityMedium
	}
	quota := r.quotas.Lookup(mode, capability)

	p := &Payload{
		Mode:        mode,
		Capability:  capability,
		Quota:       quota,
		Biography:   []Entry{},
		Canonical:   []Entry{},
		ClientFacts: []Fact{},
		Working:     []Entry{},
		History:     []Turn{},
	}

	if bio, ok := r.readLayer(ctx, p, req, LayerBiography); ok {
		p.Biography = head(bio, quota.Biography)
	}
	if canon, ok := r.readLayer(ctx, p, req, LayerCanonical); ok {
		p.Canonical = tail(canon, quota.Canonical)
	}
	if facts, ok := r.readLayer(ctx, p, req, LayerClientFacts); ok {
		p.ClientFacts = toFacts(tail(facts, quota.ClientFacts))
	}
	if working, ok := r.readLayer(ctx, p, req, LayerWorking); ok {
		p.Working = tail(working, quota.Working)
	}

	p.History = tail(NormalizeSessionHistory(req.History), quota.History)

	r.logger.Debug("composed memory payload",
		zap.String("persona_id", req.PersonaID),
		zap.String("client_id", req.ClientID),
		zap.String("mode", string(mode)),
		zap.String("capability", string(capability)),
		zap.Int("biography", len(p.Biography)),
		zap.Int("canonical", len(p.Canonical)),
		zap.Int("client_facts", len(p.ClientFacts)),
		zap.Int("working", len(p.Working)),
		zap.Int("history", len(p.History)),
	)

	return p
}

func (r *Router) readLayer(ctx context.Context, p *Payload, req PayloadRequest, layer Layer) ([]Entry, bool) {
	entries, err := r.store.ReadLayer(ctx, req.PersonaID, ScopeClient(layer, req.ClientID), layer)
	if err != nil {
		r.logger.Warn("memory layer unavailable, continuing without it",
			zap.String("persona_id", req.PersonaID),
			zap.String("layer", string(layer)),
			zap.Error(err),
		)
		p.Degraded = append(p.Degraded, layer)
		return nil, false
	}
	return entries, true
}

// History loads the stored session history for a persona+client pair. Read
// failures degrade to an empty history.
func (r *Router) History(ctx context.Context, personaID, clientID string) []Turn {
	entries, err := r.store.ReadLayer(ctx, personaID, clientID, LayerHistory)
	if err != nil {
		r.logger.Warn("session history unavailable, continuing without it",
			zap.String("persona_id", personaID),
			zap.String("client_id", clientID),
			zap.Error(err),
		)
		return []Turn{}
	}

	turns := make([]Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, Turn{Role: normalizeRole(e.Role), Content: e.Content})
	}
	return turns
}

// Canonize appends an immutable canonical entry for the persona. Canonical
// entries are never overwritten or removed.
func (r *Router) Canonize(ctx context.Context, personaID, content string) (Entry, error) {
	content = strings.TrimSpace(content)
	if personaID == "" || content == "" {
		return Entry{}, fmt.Errorf("%w: canonize requires persona id and content", ErrInvalidMutation)
	}

	unlock := r.locks.Lock(personaID)
	defer unlock()

	entry := r.newEntry(content)
	if err := r.store.AppendEntry(ctx, personaID, "", LayerCanonical, entry); err != nil {
		return Entry{}, fmt.Errorf("canonizing entry: %w", err)
	}

	r.logger.Debug("canonized memory",
		zap.String("persona_id", personaID),
		zap.String("entry_id", entry.ID),
	)

	return entry, nil
}

// AddClientFact upserts a key/value fact for the client under the persona.
func (r *Router) AddClientFact(ctx context.Context, clientID, personaID, key, value string) error {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if personaID == "" || clientID == "" || key == "" {
		return fmt.Errorf("%w: client fact requires persona id, client id and key", ErrInvalidMutation)
	}

	unlock := r.locks.Lock(personaID)
	defer unlock()

	if err := r.store.UpsertFact(ctx, personaID, clientID, key, value); err != nil {
		return fmt.Errorf("upserting client fact: %w", err)
	}

	r.logger.Debug("upserted client fact",
		zap.String("persona_id", personaID),
		zap.String("client_id", clientID),
		zap.String("key", key),
	)

	return nil
}

// AddWorkingMemory appends an observation to the persona's working memory.
// When the result would exceed capacity, the oldest entry is evicted first.
// Returns the evicted entry, if any.
func (r *Router) AddWorkingMemory(ctx context.Context, personaID, content string) (*Entry, error) {
	content = strings.TrimSpace(content)
	if personaID == "" || content == "" {
		return nil, fmt.Errorf("%w: working memory requires persona id and content", ErrInvalidMutation)
	}

	unlock := r.locks.Lock(personaID)
	defer unlock()

	ring, err := r.workingRing(ctx, personaID)
	if err != nil {
		return nil, err
	}

	evicted, didEvict := ring.Push(r.newEntry(content))

	if err := r.store.ReplaceLayer(ctx, personaID, "", LayerWorking, ring.Items()); err != nil {
		return nil, fmt.Errorf("persisting working memory: %w", err)
	}

	if !didEvict {
		return nil, nil
	}

	r.logger.Debug("evicted oldest working memory",
		zap.String("persona_id", personaID),
		zap.String("entry_id", evicted.ID),
	)
	return &evicted, nil
}

// workingRing loads the persona's working memory from the store into a ring.
// Callers must hold the persona lock.
func (r *Router) workingRing(ctx context.Context, personaID string) (*Ring[Entry], error) {
	entries, err := r.store.ReadLayer(ctx, personaID, "", LayerWorking)
	if err != nil {
		return nil, fmt.Errorf("loading working memory: %w", err)
	}

	ring := NewRing[Entry](r.workingCapacity)
	for _, e := range entries {
		ring.Push(e)
	}
	return ring, nil
}

// AppendHistory records turns in the persona+client session history, trimming
// the oldest turns beyond the configured history capacity.
func (r *Router) AppendHistory(ctx context.Context, personaID, clientID string, turns ...Turn) error {
	if personaID == "" || clientID == "" {
		return fmt.Errorf("%w: history requires persona id and client id", ErrInvalidMutation)
	}

	unlock := r.locks.Lock(personaID + "\x00" + clientID)
	defer unlock()

	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		entry := r.newEntry(t.Content)
		entry.Role = normalizeRole(t.Role)
		if err := r.store.AppendEntry(ctx, personaID, clientID, LayerHistory, entry); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
	}

	entries, err := r.store.ReadLayer(ctx, personaID, clientID, LayerHistory)
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}
	if len(entries) <= r.historyCapacity {
		return nil
	}

	if err := r.store.ReplaceLayer(ctx, personaID, clientID, LayerHistory, tail(entries, r.historyCapacity)); err != nil {
		return fmt.Errorf("trimming history: %w", err)
	}
	return nil
}

func (r *Router) newEntry(content string) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: r.now().UTC(),
	}
}

// head keeps the first n items.
func head[T any](items []T, n int) []T {
	if n <= 0 {
		return []T{}
	}
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// tail keeps the last n items, preserving order.
func tail[T any](items []T, n int) []T {
	if n <= 0 {
		return []T{}
	}
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func toFacts(entries []Entry) []Fact {
	facts := make([]Fact, 0, len(entries))
	for _, e := range entries {
		facts = append(facts, Fact{Key: e.Key, Value: e.Content})
	}
	return facts
}
