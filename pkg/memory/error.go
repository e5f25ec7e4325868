package memory

import "errors"

var (
	// ErrStore wraps a failed read or write against a single layer. The Router
	// absorbs it on reads and degrades the layer to empty.
	ErrStore = errors.New("memory store error")

	// ErrStoreUnavailable is returned when the store cannot serve the initial
	// persona load. It is the only memory failure surfaced to callers.
	ErrStoreUnavailable = errors.New("memory store unavailable")

	// ErrPersonaNotFound is returned when the requested persona does not exist.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrImmutableLayer is returned when a caller tries to rewrite the
	// append-only canonical layer.
	ErrImmutableLayer = errors.New("layer is append-only")

	// ErrInvalidMutation is returned for mutations with missing ids or content.
	ErrInvalidMutation = errors.New("invalid memory mutation")

	// ErrUnknownLayer is returned for layer names outside the five layers.
	ErrUnknownLayer = errors.New("unknown memory layer")
)

// NotFoundError is returned by stores when a persona doesn't exist.
type NotFoundError struct {
	PersonaID string
}

func (e NotFoundError) Error() string {
	if e.PersonaID == "" {
		return "persona not found"
	}

	return "persona not found: " + e.PersonaID
}

// Is lets errors.Is(err, ErrPersonaNotFound) match NotFoundError values.
func (e NotFoundError) Is(target error) bool {
	return target == ErrPersonaNotFound
}
