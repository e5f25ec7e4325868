package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Multi tees every entry to the cores of all non-nil loggers. serve uses it
// to keep console output alongside a JSON log file.
func Multi(loggers ...*zap.Logger) *zap.Logger {
	cores := make([]zapcore.Core, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			cores = append(cores, l.Core())
		}
	}
	return zap.New(zapcore.NewTee(cores...))
}
