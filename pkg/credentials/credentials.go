// Package credentials stores backend API keys in credentials.toml in the
// .relay/ directory.
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/relay/pkg/backend"
	"github.com/papercomputeco/relay/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// providerEnvVars maps provider names to their expected environment variables.
var providerEnvVars = map[string]string{
	backend.ProviderOpenAI:    "OPENAI_API_KEY",
	backend.ProviderAnthropic: "ANTHROPIC_API_KEY",
	backend.ProviderGemini:    "GEMINI_API_KEY",
}

// Manager reads and writes credentials.toml.
type Manager struct {
	path string
}

// NewManager resolves credentials.toml inside the .relay/ directory picked by
// override and the usual dotdir rules.
func NewManager(override string) (*Manager, error) {
	path, err := dotdir.NewManager().File(override, credentialsFile)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path}, nil
}

// Load reads credentials.toml. A missing file yields empty credentials.
func (m *Manager) Load() (*Credentials, error) {
	creds := &Credentials{
		Version:   currentVersion,
		Providers: make(map[string]ProviderCredential),
	}

	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return creds, nil
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds.Version != currentVersion {
		return nil, fmt.Errorf("unsupported credentials version %d (expected %d)", creds.Version, currentVersion)
	}
	if creds.Providers == nil {
		creds.Providers = make(map[string]ProviderCredential)
	}

	return creds, nil
}

// Save replaces credentials.toml with creds. The file is written to a
// temporary sibling with 0600 permissions and renamed into place.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), credentialsFile+".*")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func (m *Manager) update(fn func(*Credentials)) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	fn(creds)
	return m.Save(creds)
}

// SetKey stores an API key for the given provider.
func (m *Manager) SetKey(provider, key string) error {
	return m.update(func(c *Credentials) {
		c.Providers[provider] = ProviderCredential{APIKey: key}
	})
}

// RemoveKey deletes the stored credential for a provider.
func (m *Manager) RemoveKey(provider string) error {
	return m.update(func(c *Credentials) {
		delete(c.Providers, provider)
	})
}

// GetKey returns the stored API key for the given provider, or "".
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	return creds.Providers[provider].APIKey, nil
}

// Resolve picks the key a backend should use: an explicit key from
// config.toml, then the provider's environment variable, then the stored key.
func (m *Manager) Resolve(provider, explicit string) (Key, error) {
	if explicit != "" {
		return Key{Value: explicit, Source: SourceConfig}, nil
	}

	if env := EnvVarForProvider(provider); env != "" {
		if v := os.Getenv(env); v != "" {
			return Key{Value: v, Source: SourceEnv}, nil
		}
	}

	stored, err := m.GetKey(provider)
	if err != nil {
		return Key{}, err
	}
	if stored == "" {
		return Key{}, nil
	}
	return Key{Value: stored, Source: SourceStored}, nil
}

// ListProviders returns the sorted names of providers with stored keys.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	providers := make([]string, 0, len(creds.Providers))
	for name := range creds.Providers {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	return providers, nil
}

// GetTarget returns the path of credentials.toml.
func (m *Manager) GetTarget() string {
	return m.path
}

// EnvVarForProvider returns the environment variable name for a given provider.
// Returns an empty string for unknown providers.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}

// SupportedProviders lists the backend providers that take an API key.
func SupportedProviders() []string {
	return []string{backend.ProviderOpenAI, backend.ProviderAnthropic, backend.ProviderGemini}
}

// IsSupportedProvider returns true if the given provider is supported.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}
