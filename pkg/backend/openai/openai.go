// Package openai implements backend.Backend against the OpenAI chat
// completions API and compatible servers.
package openai

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
	// DefaultBaseURL is the default OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultModel is the default chat model.
	DefaultModel = "gpt-4o-mini"
)

// Config holds configuration for the OpenAI backend.
type Config struct {
	// Name is the backend id. Defaults to "openai".
	Name string

	// BaseURL is the API root without the /v1 suffix.
	BaseURL string

	// Model is the chat model.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// MaxTokens caps the completion length. Zero leaves it to the server.
	MaxTokens int

	HTTPClient *http.Client
}

// Backend wraps /v1/chat/completions.
type Backend struct {
	name       string
	baseURL    string
	model      string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// New creates an OpenAI backend.
func New(c Config) *Backend {
	b := &Backend{
		name:       c.Name,
		baseURL:    strings.TrimSuffix(strings.TrimRight(c.BaseURL, "/"), "/v1"),
		model:      c.Model,
		apiKey:     c.APIKey,
		maxTokens:  c.MaxTokens,
		httpClient: c.HTTPClient,
	}
	if b.name == "" {
		b.name = backend.ProviderOpenAI
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

func (b *Backend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	return req, nil
}

// IsAvailable lists models, which verifies both reachability and the key.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	req, err := b.newRequest(ctx, http.MethodGet, "/v1/models", nil)
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

// Send runs a single chat completion.
func (b *Backend) Send(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Model:    b.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if b.maxTokens > 0 {
		payload.MaxTokens = &b.maxTokens
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshaling request: %w", backend.ErrMalformed, err)
	}

	req, err := b.newRequest(ctx, http.MethodPost, "/v1/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: creating request: %w", backend.ErrTransport, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sending request: %w", backend.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: openai returned status %d: %s", backend.ErrTransport, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", backend.ErrMalformed, err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", backend.ErrMalformed)
	}

	return chatResp.Choices[0].Message.Content, nil
}

// Close releases resources held by the backend.
func (b *Backend) Close() error {
	return nil
}

var _ backend.Backend = (*Backend)(nil)
