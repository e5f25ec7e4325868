// Package zaplog publishes execution events as structured log lines.
package zaplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/utils"
)

// Backend errors can embed whole response bodies.
const maxErrorRunes = 512

// Publisher writes each event to a zap logger.
type Publisher struct {
	logger *zap.Logger
}

// NewPublisher creates a log publisher. A nil logger discards events.
func NewPublisher(l *zap.Logger) *Publisher {
	return &Publisher{logger: logger.OrNop(l).Named("execution")}
}

// PublishExecution logs the event.
func (p *Publisher) PublishExecution(_ context.Context, event *eventstream.ExecutionEvent) error {
	if event == nil {
		return eventstream.ErrNilExecutionEvent
	}

	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("backend", event.Attempt.BackendID),
		zap.String("outcome", event.Attempt.Outcome),
		zap.Int64("latency_ms", event.Attempt.LatencyMs),
		zap.String("session_id", event.Attempt.SessionID),
	}
	if event.Attempt.Error != "" {
		fields = append(fields, zap.String("error", utils.Truncate(event.Attempt.Error, maxErrorRunes)))
	}

	p.logger.Info(event.EventType, fields...)
	return nil
}

// Close flushes the logger.
func (p *Publisher) Close() error {
	_ = p.logger.Sync()
	return nil
}
