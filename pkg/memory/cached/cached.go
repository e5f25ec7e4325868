// Package cached wraps a memory.Store with a read-through ristretto cache.
//
// Persona profiles and layer reads are cached; any write to a layer or
// persona invalidates the affected key. Concurrent misses for the same key
// share one backing read.
package cached

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/papercomputeco/relay/pkg/memory"
)

// Config configures a cached store.
type Config struct {
	// MaxEntries bounds the number of cached reads. Default 10_000.
	MaxEntries int64
}

// Store is a memory.Store that caches reads from an inner store.
type Store struct {
	inner memory.Store
	cache *ristretto.Cache
	group singleflight.Group

	// generations are bumped on every write so a read that started before
	// the write never repopulates the cache with stale data.
	mu          sync.Mutex
	generations map[string]uint64
}

// New wraps inner with a cache.
func New(inner memory.Store, c Config) (*Store, error) {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 10_000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: c.MaxEntries * 10,
		MaxCost:     c.MaxEntries,
		BufferItems: 64,

		// Every entry costs 1; MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Store{
		inner:       inner,
		cache:       cache,
		generations: make(map[string]uint64),
	}, nil
}

func personaKey(personaID string) string {
	return "persona\x00" + personaID
}

func layerKey(personaID, clientID string, layer memory.Layer) string {
	return "layer\x00" + personaID + "\x00" + memory.ScopeClient(layer, clientID) + "\x00" + string(layer)
}

func (s *Store) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[key]
}

func (s *Store) invalidate(key string) {
	s.mu.Lock()
	s.generations[key]++
	s.mu.Unlock()

	s.cache.Del(key)
}

// fill stores v under key unless a write happened since gen was taken.
func (s *Store) fill(key string, gen uint64, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generations[key] != gen {
		return
	}
	s.cache.Set(key, v, 1)
}

// ReadPersona returns the cached persona or loads it from the inner store.
func (s *Store) ReadPersona(ctx context.Context, personaID string) (*memory.Persona, error) {
	key := personaKey(personaID)
	if v, ok := s.cache.Get(key); ok {
		p := v.(memory.Persona)
		return &p, nil
	}

	gen := s.generation(key)
	v, err, _ := s.group.Do(key, func() (any, error) {
		p, err := s.inner.ReadPersona(ctx, personaID)
		if err != nil {
			return nil, err
		}
		s.fill(key, gen, *p)
		return *p, nil
	})
	if err != nil {
		return nil, err
	}

	p := v.(memory.Persona)
	return &p, nil
}

// WritePersona writes through and invalidates the cached profile.
func (s *Store) WritePersona(ctx context.Context, persona *memory.Persona) error {
	if err := s.inner.WritePersona(ctx, persona); err != nil {
		return err
	}
	if persona != nil {
		s.invalidate(personaKey(persona.ID))
	}
	return nil
}

// ReadLayer returns the cached layer or loads it from the inner store.
// The returned slice is always a fresh copy.
func (s *Store) ReadLayer(ctx context.Context, personaID, clientID string, layer memory.Layer) ([]memory.Entry, error) {
	key := layerKey(personaID, clientID, layer)
	if v, ok := s.cache.Get(key); ok {
		return clone(v.([]memory.Entry)), nil
	}

	gen := s.generation(key)
	v, err, _ := s.group.Do(key, func() (any, error) {
		entries, err := s.inner.ReadLayer(ctx, personaID, clientID, layer)
		if err != nil {
			return nil, err
		}
		s.fill(key, gen, clone(entries))
		return entries, nil
	})
	if err != nil {
		return nil, err
	}

	return clone(v.([]memory.Entry)), nil
}

// AppendEntry writes through and invalidates the layer.
func (s *Store) AppendEntry(ctx context.Context, personaID, clientID string, layer memory.Layer, entry memory.Entry) error {
	defer s.invalidate(layerKey(personaID, clientID, layer))
	return s.inner.AppendEntry(ctx, personaID, clientID, layer, entry)
}

// UpsertFact writes through and invalidates the client's facts.
func (s *Store) UpsertFact(ctx context.Context, personaID, clientID, key, value string) error {
	defer s.invalidate(layerKey(personaID, clientID, memory.LayerClientFacts))
	return s.inner.UpsertFact(ctx, personaID, clientID, key, value)
}

// ReplaceLayer writes through and invalidates the layer.
func (s *Store) ReplaceLayer(ctx context.Context, personaID, clientID string, layer memory.Layer, entries []memory.Entry) error {
	defer s.invalidate(layerKey(personaID, clientID, layer))
	return s.inner.ReplaceLayer(ctx, personaID, clientID, layer, entries)
}

// Ping pings the inner store.
func (s *Store) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Wait blocks until pending cache writes are applied.
func (s *Store) Wait() {
	s.cache.Wait()
}

// Close closes the cache and the inner store.
func (s *Store) Close() error {
	s.cache.Close()
	return s.inner.Close()
}

func clone(entries []memory.Entry) []memory.Entry {
	out := make([]memory.Entry, len(entries))
	copy(out, entries)
	return out
}
