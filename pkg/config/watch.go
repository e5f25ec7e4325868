package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/circuit"
	"github.com/papercomputeco/relay/pkg/logger"
)

// ErrNoConfigFile is returned by WatchCircuit when viper found no config.toml.
var ErrNoConfigFile = errors.New("no config file to watch")

// WatchCircuit watches the config file behind v and calls apply with the new
// breaker settings whenever the [circuit] section changes. Invalid edits are
// logged and ignored so a typo never resets a running registry.
func WatchCircuit(v *viper.Viper, log *zap.Logger, apply func(circuit.Settings)) error {
	if v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	log = logger.OrNop(log).Named("config")

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg := &Config{
			Circuit: CircuitConfig{
				Threshold: v.GetInt("circuit.threshold"),
				Cooldown:  v.GetString("circuit.cooldown"),
			},
		}

		settings, err := cfg.CircuitSettings()
		if err != nil {
			log.Warn("ignoring invalid circuit settings",
				zap.String("file", e.Name),
				zap.Error(err),
			)
			return
		}

		log.Info("reloaded circuit settings",
			zap.String("file", e.Name),
			zap.Int("threshold", settings.Threshold),
			zap.Duration("cooldown", settings.Cooldown),
		)
		apply(settings)
	})
	v.WatchConfig()

	return nil
}
