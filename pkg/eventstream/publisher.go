package eventstream

import (
	"context"
	"errors"
)

// ErrNilExecutionEvent is returned by publishers handed a nil event.
var ErrNilExecutionEvent = errors.New("nil execution event")

// Publisher publishes execution events to an event stream backend.
type Publisher interface {
	PublishExecution(ctx context.Context, event *ExecutionEvent) error
	Close() error
}

// multiPublisher fans events out to several publishers.
type multiPublisher struct {
	publishers []Publisher
}

// Multi returns a Publisher that publishes to every given publisher. A
// failure in one does not stop the others; the errors are joined.
func Multi(publishers ...Publisher) Publisher {
	if len(publishers) == 1 {
		return publishers[0]
	}
	return &multiPublisher{publishers: publishers}
}

func (m *multiPublisher) PublishExecution(ctx context.Context, event *ExecutionEvent) error {
	if event == nil {
		return ErrNilExecutionEvent
	}

	var errs []error
	for _, p := range m.publishers {
		if err := p.PublishExecution(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *multiPublisher) Close() error {
	var errs []error
	for _, p := range m.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
