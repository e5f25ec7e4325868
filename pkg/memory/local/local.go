// Package local provides an in-memory implementation of the memory.Store
// interface.
//
// Layers are kept in process keyed by persona and, for client-scoped layers,
// client. This is the local-dev story and the store used by tests; durable
// deployments use the sqlite or postgres stores.
package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/papercomputeco/relay/pkg/memory"
)

type layerKey struct {
	personaID string
	clientID  string
	layer     memory.Layer
}

// Store implements memory.Store using in-process data structures.
type Store struct {
	mu sync.RWMutex

	// personas maps persona id -> profile
	personas map[string]memory.Persona

	// layers maps (persona, client, layer) -> ordered entries
	layers map[layerKey][]memory.Entry

	closed bool
}

// NewStore creates a local in-memory store.
func NewStore() *Store {
	return &Store{
		personas: make(map[string]memory.Persona),
		layers:   make(map[layerKey][]memory.Entry),
	}
}

func key(personaID, clientID string, layer memory.Layer) layerKey {
	return layerKey{
		personaID: personaID,
		clientID:  memory.ScopeClient(layer, clientID),
		layer:     layer,
	}
}

// ReadPersona returns a copy of the persona profile.
func (s *Store) ReadPersona(_ context.Context, personaID string) (*memory.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStore)
	}

	p, ok := s.personas[personaID]
	if !ok {
		return nil, memory.NotFoundError{PersonaID: personaID}
	}
	return &p, nil
}

// WritePersona creates or replaces a persona profile.
func (s *Store) WritePersona(_ context.Context, persona *memory.Persona) error {
	if persona == nil || persona.ID == "" {
		return fmt.Errorf("%w: persona id is required", memory.ErrInvalidMutation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.personas[persona.ID] = *persona
	return nil
}

// ReadLayer returns a copy of the layer's entries, oldest first.
func (s *Store) ReadLayer(_ context.Context, personaID, clientID string, layer memory.Layer) ([]memory.Entry, error) {
	if !layer.Valid() {
		return nil, fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("%w: store closed", memory.ErrStore)
	}

	entries := s.layers[key(personaID, clientID, layer)]

	// Return a copy to avoid callers mutating internal state.
	result := make([]memory.Entry, len(entries))
	copy(result, entries)

	return result, nil
}

// AppendEntry appends an entry to the layer.
func (s *Store) AppendEntry(_ context.Context, personaID, clientID string, layer memory.Layer, entry memory.Entry) error {
	if !layer.Valid() {
		return fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	k := key(personaID, clientID, layer)
	s.layers[k] = append(s.layers[k], entry)
	return nil
}

// UpsertFact updates the fact with the same key in place, or appends it.
// Updated facts move to the end so the layer stays ordered by recency.
func (s *Store) UpsertFact(_ context.Context, personaID, clientID, factKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(personaID, clientID, memory.LayerClientFacts)
	facts := s.layers[k]

	out := make([]memory.Entry, 0, len(facts)+1)
	for _, f := range facts {
		if f.Key != factKey {
			out = append(out, f)
		}
	}
	out = append(out, memory.Entry{
		ID:        factKey,
		Key:       factKey,
		Content:   value,
		CreatedAt: time.Now().UTC(),
	})

	s.layers[k] = out
	return nil
}

// ReplaceLayer rewrites a layer. The canonical layer is append-only.
func (s *Store) ReplaceLayer(_ context.Context, personaID, clientID string, layer memory.Layer, entries []memory.Entry) error {
	if layer == memory.LayerCanonical {
		return memory.ErrImmutableLayer
	}
	if !layer.Valid() {
		return fmt.Errorf("%w: %q", memory.ErrUnknownLayer, layer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make([]memory.Entry, len(entries))
	copy(replaced, entries)
	s.layers[key(personaID, clientID, layer)] = replaced
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("%w: store closed", memory.ErrStore)
	}
	return nil
}

// Close marks the store closed; subsequent reads fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
