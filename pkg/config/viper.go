package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "RELAY"

// InitViper returns a viper instance resolving every config key with this
// precedence, highest first:
//  1. CLI flags, once bound with BindRegisteredFlags
//  2. RELAY_* environment variables (RELAY_MEMORY_PROVIDER, ...)
//  3. config.toml in the resolved .relay/ directory
//  4. NewDefaultConfig
func InitViper(configDir string) (*viper.Viper, error) {
	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	v := viper.New()
	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults seeds v with NewDefaultConfig under dotted keys.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for key, info := range configKeys {
		v.SetDefault(key, info.get(d))
	}
}

// ApplyViper overlays every scalar config key resolved by v onto cfg, so
// flags and RELAY_* variables win over the values loaded from config.toml.
// The [[backends]] and [quotas] tables are only read from the file.
func ApplyViper(v *viper.Viper, cfg *Config) error {
	var errs []error
	for _, key := range ValidConfigKeys() {
		value := viperString(v.Get(key))
		if value == "" {
			continue
		}
		if err := configKeys[key].set(cfg, value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// viperString renders a viper value in the form the configKeys setters parse.
func viperString(value any) string {
	switch t := value.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ",")
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

// Load reads config.toml from the resolved .relay/ directory, overlays the
// env and flag values resolved by v and validates the result. It returns the
// directory the file lives in.
func Load(configDir string, v *viper.Viper) (*Config, string, error) {
	cfger, err := NewConfiger(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, "", err
	}

	if v != nil {
		if err := ApplyViper(v, cfg); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config: %w", err)
	}

	return cfg, cfger.Dir(), nil
}
