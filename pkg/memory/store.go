package memory

import "context"

// Store is the adapter to the persistence backend holding persona memory.
// Layer reads return entries in insertion order, oldest first, except the
// biography layer which the store returns in relevance order.
//
// Implementations must be safe for concurrent use. Entries are partitioned by
// persona and, for client-scoped layers, by client; use ScopeClient to derive
// the client key for a layer.
type Store interface {
	// ReadPersona loads a persona profile. Returns NotFoundError when the
	// persona doesn't exist.
	ReadPersona(ctx context.Context, personaID string) (*Persona, error)

	// WritePersona creates or replaces a persona profile.
	WritePersona(ctx context.Context, persona *Persona) error

	// ReadLayer returns the ordered entries of a layer.
	ReadLayer(ctx context.Context, personaID, clientID string, layer Layer) ([]Entry, error)

	// AppendEntry appends one entry to a layer.
	AppendEntry(ctx context.Context, personaID, clientID string, layer Layer, entry Entry) error

	// UpsertFact inserts or updates a client fact by key.
	UpsertFact(ctx context.Context, personaID, clientID, key, value string) error

	// ReplaceLayer atomically rewrites a layer. Must return ErrImmutableLayer
	// for the canonical layer.
	ReplaceLayer(ctx context.Context, personaID, clientID string, layer Layer, entries []Entry) error

	// Ping checks connectivity with the backend.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
