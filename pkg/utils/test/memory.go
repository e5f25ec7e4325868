package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/memory/local"
)

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")

// MockStore is a memory.Store backed by a local store that can be told to
// fail persona loads or individual layer reads, and counts calls.
type MockStore struct {
	*local.Store

	mu sync.Mutex

	// FailPersona causes ReadPersona to return a non-NotFound error.
	FailPersona bool

	// FailLayers causes ReadLayer to fail for the listed layers.
	FailLayers map[memory.Layer]bool

	// FailReplace causes ReplaceLayer to fail.
	FailReplace bool

	// Reads counts ReadLayer calls per layer.
	Reads map[memory.Layer]int
}

// NewMockStore creates a new mock store.
func NewMockStore() *MockStore {
	return &MockStore{
		Store:      local.NewStore(),
		FailLayers: make(map[memory.Layer]bool),
		Reads:      make(map[memory.Layer]int),
	}
}

// SetFailLayer toggles failures for one layer.
func (m *MockStore) SetFailLayer(layer memory.Layer, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailLayers[layer] = fail
}

// ReadCount returns how many times a layer was read.
func (m *MockStore) ReadCount(layer memory.Layer) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Reads[layer]
}

func (m *MockStore) ReadPersona(ctx context.Context, personaID string) (*memory.Persona, error) {
	m.mu.Lock()
	fail := m.FailPersona
	m.mu.Unlock()

	if fail {
		return nil, ErrInjected
	}
	return m.Store.ReadPersona(ctx, personaID)
}

func (m *MockStore) ReadLayer(ctx context.Context, personaID, clientID string, layer memory.Layer) ([]memory.Entry, error) {
	m.mu.Lock()
	m.Reads[layer]++
	fail := m.FailLayers[layer]
	m.mu.Unlock()

	if fail {
		return nil, errors.Join(memory.ErrStore, ErrInjected)
	}
	return m.Store.ReadLayer(ctx, personaID, clientID, layer)
}

func (m *MockStore) ReplaceLayer(ctx context.Context, personaID, clientID string, layer memory.Layer, entries []memory.Entry) error {
	m.mu.Lock()
	fail := m.FailReplace
	m.mu.Unlock()

	if fail {
		return ErrInjected
	}
	return m.Store.ReplaceLayer(ctx, personaID, clientID, layer, entries)
}
