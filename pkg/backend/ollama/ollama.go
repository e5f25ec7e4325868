// Package ollama implements backend.Backend against Ollama's chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/relay/pkg/backend"
)

const (
	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"

	// DefaultModel is the default chat model.
	DefaultModel = "llama3.2"
)

// Config holds configuration for the Ollama backend.
type Config struct {
	// Name is the backend id. Defaults to "ollama".
	Name string

	// BaseURL is the Ollama API URL (e.g., "http://localhost:11434").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model. Defaults to DefaultModel if empty.
	Model string

	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// Backend wraps Ollama's /api/chat endpoint.
type Backend struct {
	name       string
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error,omitempty"`
}

// New creates an Ollama backend. Timeouts are governed by the caller's
// context.
func New(c Config) *Backend {
	b := &Backend{
		name:       c.Name,
		baseURL:    strings.TrimRight(c.BaseURL, "/"),
		model:      c.Model,
		httpClient: c.HTTPClient,
	}
	if b.name == "" {
		b.name = backend.ProviderOllama
	}
	if b.baseURL == "" {
		b.baseURL = DefaultBaseURL
	}
	if b.model == "" {
		b.model = DefaultModel
	}
	if b.httpClient == nil {
		b.httpClient = &http.Client{}
	}
	return b
}

// Name returns the backend id.
func (b *Backend) Name() string {
	return b.name
}

// IsAvailable hits /api/tags, which lists local models without loading one.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Send runs a single non-streaming chat turn.
func (b *Backend) Send(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(chatRequest{
		Model:    b.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %w", backend.ErrMalformed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", backend.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %w", backend.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: ollama returned status %d: %s", backend.ErrTransport, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", backend.ErrMalformed, err)
	}
	if chatResp.Error != "" {
		return "", fmt.Errorf("%w: %s", backend.ErrTransport, chatResp.Error)
	}

	return chatResp.Message.Content, nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

// Ensure Backend implements backend.Backend
var _ backend.Backend = (*Backend)(nil)
