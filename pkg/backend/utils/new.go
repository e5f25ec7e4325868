// Package backendutils is the backend utility package
package backendutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/backend/anthropic"
	"github.com/papercomputeco/relay/pkg/backend/fallback"
	"github.com/papercomputeco/relay/pkg/backend/gemini"
	"github.com/papercomputeco/relay/pkg/backend/ollama"
	"github.com/papercomputeco/relay/pkg/backend/openai"
)

type NewBackendOpts struct {
	ProviderType string
	Name         string
	TargetURL    string
	Model        string
	APIKey       string
	MaxTokens    int

	// FallbackText is the canned response of the fallback provider.
	FallbackText string
}

func NewBackend(ctx context.Context, o *NewBackendOpts) (backend.Backend, error) {
	switch o.ProviderType {
	case backend.ProviderOllama:
		return ollama.New(ollama.Config{
			Name:    o.Name,
			BaseURL: o.TargetURL,
			Model:   o.Model,
		}), nil
	case backend.ProviderOpenAI:
		return openai.New(openai.Config{
			Name:      o.Name,
			BaseURL:   o.TargetURL,
			Model:     o.Model,
			APIKey:    o.APIKey,
			MaxTokens: o.MaxTokens,
		}), nil
	case backend.ProviderAnthropic:
		return anthropic.New(anthropic.Config{
			Name:      o.Name,
			APIKey:    o.APIKey,
			BaseURL:   o.TargetURL,
			Model:     o.Model,
			MaxTokens: int64(o.MaxTokens),
		})
	case backend.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			Name:    o.Name,
			APIKey:  o.APIKey,
			BaseURL: o.TargetURL,
			Model:   o.Model,
		})
	case backend.ProviderFallback:
		return fallback.New(o.FallbackText), nil
	default:
		return nil, fmt.Errorf("unknown backend provider: %q (supported: %v)", o.ProviderType, backend.SupportedProviders())
	}
}
