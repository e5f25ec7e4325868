// Package logger builds the zap loggers used across relay.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger. Without options it writes colored console lines at
// info level to stdout.
func New(opts ...Option) *zap.Logger {
	c := &config{level: zap.InfoLevel}
	for _, opt := range opts {
		opt(c)
	}

	core := zapcore.NewCore(c.encoder(), c.syncer(), c.level)

	var zopts []zap.Option
	if c.caller {
		zopts = append(zopts, zap.AddCaller())
	}

	l := zap.New(core, zopts...)
	if c.name != "" {
		l = l.Named(c.name)
	}
	return l
}

func (c *config) encoder() zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder

	if c.json {
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}

func (c *config) syncer() zapcore.WriteSyncer {
	if len(c.writers) == 0 {
		return zapcore.Lock(os.Stdout)
	}
	syncers := make([]zapcore.WriteSyncer, len(c.writers))
	for i, w := range c.writers {
		syncers[i] = zapcore.AddSync(w)
	}
	return zapcore.NewMultiWriteSyncer(syncers...)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

