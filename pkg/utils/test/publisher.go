package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/relay/pkg/eventstream"
)

// RecordingPublisher collects published execution events.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ExecutionEvent
	closed bool

	// Err is returned from every publish when set.
	Err error

	// Block, when non-nil, holds every publish until it is closed.
	Block chan struct{}
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishExecution(ctx context.Context, event *eventstream.ExecutionEvent) error {
	if event == nil {
		return eventstream.ErrNilExecutionEvent
	}

	if p.Block != nil {
		select {
		case <-p.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Events returns a copy of the published events.
func (p *RecordingPublisher) Events() []*eventstream.ExecutionEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*eventstream.ExecutionEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Closed reports whether Close was called.
func (p *RecordingPublisher) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
