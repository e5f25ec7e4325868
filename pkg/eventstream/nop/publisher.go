// Package nop discards execution events. serve falls back to it when neither
// the log nor Kafka sink is enabled.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/relay/pkg/eventstream"
)

type Publisher struct {
	discarded atomic.Int64
}

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishExecution drops event after rejecting nil.
func (p *Publisher) PublishExecution(_ context.Context, event *eventstream.ExecutionEvent) error {
	if event == nil {
		return eventstream.ErrNilExecutionEvent
	}
	p.discarded.Add(1)
	return nil
}

// Discarded is the number of events dropped so far.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

func (p *Publisher) Close() error {
	return nil
}
