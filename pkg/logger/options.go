package logger

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	level   zapcore.Level
	json    bool
	caller  bool
	name    string
	writers []io.Writer
}

type Option func(*config)

// WithDebug lowers the level to debug when debug is set.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = zap.DebugLevel
		}
	}
}

func WithLevel(level zapcore.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithJSON switches to the JSON encoder.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter adds output writers. Entries go to every writer; stdout is used
// only when none are given.
func WithWriter(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = append(c.writers, w...)
	}
}

// WithCaller annotates entries with the calling file and line.
func WithCaller(caller bool) Option {
	return func(c *config) {
		c.caller = caller
	}
}

// WithName names the logger, e.g. "relay" or "api".
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// ParseLevel accepts zap's level names: debug, info, warn, error.
func ParseLevel(s string) (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zap.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
