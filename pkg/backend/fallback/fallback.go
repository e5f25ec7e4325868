// Package fallback provides the terminal backend used when every configured
// backend is exhausted. It makes no network calls and always answers.
package fallback

import (
	"context"
	"strings"

	"github.com/papercomputeco/relay/pkg/backend"
)

// Name is the id reported for fallback responses.
const Name = backend.ProviderFallback

// DefaultText is returned when no custom text is configured.
const DefaultText = "I'm having trouble gathering my thoughts right now. Please try again in a moment."

// Backend is the deterministic local fallback.
type Backend struct {
	text string
}

// New creates a fallback backend. An empty text uses DefaultText.
func New(text string) *Backend {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultText
	}
	return &Backend{text: text}
}

// Name returns "fallback".
func (b *Backend) Name() string {
	return Name
}

// IsAvailable always reports true.
func (b *Backend) IsAvailable(context.Context) bool {
	return true
}

// Send returns the configured text regardless of prompt.
func (b *Backend) Send(context.Context, string) (string, error) {
	return b.text, nil
}

// Close is a no-op.
func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
