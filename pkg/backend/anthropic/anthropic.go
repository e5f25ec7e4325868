// Package anthropic implements backend.Backend with the Anthropic SDK.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/papercomputeco/relay/pkg/backend"
)

const (
	// DefaultModel is the default Claude model.
	DefaultModel = "claude-sonnet-4-5"

	// DefaultMaxTokens caps response length when unset.
	DefaultMaxTokens = 1024
)

// Config holds configuration for the Anthropic backend.
type Config struct {
	// Name is the backend id. Defaults to "anthropic".
	Name string

	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	Model     string
	MaxTokens int64
}

// Backend sends prompts through the Messages API.
type Backend struct {
	name      string
	model     string
	maxTokens int64
	client    *anthropic.Client
}

// New creates an Anthropic backend.
func New(c Config) (*Backend, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if c.Name == "" {
		c.Name = backend.ProviderAnthropic
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}

	// The dispatcher owns retries through the cascade.
	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &Backend{
		name:      c.Name,
		model:     c.Model,
		maxTokens: c.MaxTokens,
		client:    &client,
	}, nil
}

// Name returns the backend id.
func (b *Backend) Name() string {
	return b.name
}

// IsAvailable lists a single model, which exercises the network path and
// the API key without generating tokens.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	_, err := b.client.Models.List(ctx, anthropic.ModelListParams{
		Limit: anthropic.Int(1),
	})
	return err == nil
}

// Send creates a single-turn message and returns its text blocks.
func (b *Backend) Send(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: claude API error: %w", backend.ErrTransport, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
