package credentials

// Credentials is the on-disk shape of credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}

// Source says where a resolved key came from.
type Source string

const (
	SourceNone   Source = ""
	SourceConfig Source = "config"
	SourceEnv    Source = "env"
	SourceStored Source = "stored"
)

// Key is a resolved API key.
type Key struct {
	Value  string
	Source Source
}
