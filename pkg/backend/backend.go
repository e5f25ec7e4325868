// Package backend defines the interface every generation backend implements.
package backend

import (
	"context"
	"errors"
)

// Backend is a text-generation collaborator the dispatcher can try.
type Backend interface {
	// Name returns the unique backend id used for circuits and logs.
	Name() string

	// IsAvailable performs a live, cheap reachability check. Configured
	// credentials alone must never count as available.
	IsAvailable(ctx context.Context) bool

	// Send generates a response for prompt.
	Send(ctx context.Context, prompt string) (string, error)

	// Close releases resources held by the backend.
	Close() error
}

var (
	// ErrTransport wraps network and HTTP-level failures.
	ErrTransport = errors.New("backend transport error")

	// ErrMalformed marks a response that could not be decoded or carried no
	// text.
	ErrMalformed = errors.New("malformed backend response")
)

// Supported provider type constants
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderFallback  = "fallback"
)

// SupportedProviders returns the list of all supported provider type names.
func SupportedProviders() []string {
	return []string{ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderFallback}
}
