// Package gemini implements backend.Backend with Google's GenAI SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/papercomputeco/relay/pkg/backend"
)

// DefaultModel is the default Gemini model.
const DefaultModel = "gemini-2.5-flash"

// Config holds configuration for the Gemini backend.
type Config struct {
	// Name is the backend id. Defaults to "gemini".
	Name string

	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	Model string
}

// Backend sends prompts through GenerateContent.
type Backend struct {
	name   string
	model  string
	client *genai.Client
}

// New creates a Gemini backend.
func New(ctx context.Context, c Config) (*Backend, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if c.Name == "" {
		c.Name = backend.ProviderGemini
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:  c.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Backend{
		name:   c.Name,
		model:  c.Model,
		client: client,
	}, nil
}

// Name returns the backend id.
func (b *Backend) Name() string {
	return b.name
}

// IsAvailable fetches the configured model's metadata.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	_, err := b.client.Models.Get(ctx, b.model, nil)
	return err == nil
}

// Send generates content for a single text prompt.
func (b *Backend) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%w: gemini API error: %w", backend.ErrTransport, err)
	}
	return resp.Text(), nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
