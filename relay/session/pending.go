package session

import (
	"context"
	"sync"
	"sync/atomic"
)

// State is the lifecycle position of a Pending request.
type State int32

const (
	StateQueued State = iota
	StateRunning
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Pending is a submitted request awaiting its result.
type Pending struct {
	req Request

	// ctx is cancelled with a cause by Cancel, session reclaim or manager
	// Close. It is only consulted while the request is queued.
	ctx    context.Context
	cancel context.CancelCauseFunc

	state atomic.Int32
	once  sync.Once
	done  chan struct{}

	result *Result
	err    error
}

func newPending(parent context.Context, req Request) *Pending {
	ctx, cancel := context.WithCancelCause(parent)
	return &Pending{
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Request returns the submitted request.
func (p *Pending) Request() Request {
	return p.req
}

// State reports where the request is in its lifecycle.
func (p *Pending) State() State {
	return State(p.state.Load())
}

// Done is closed once the request has a result or error.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the request completes or ctx ends. Ending ctx does not
// cancel the request.
func (p *Pending) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel withdraws the request if it has not been dequeued for execution.
// It reports whether the request was cancelled.
func (p *Pending) Cancel() bool {
	return p.abort(ErrCancelled)
}

// abort moves a queued request to cancelled and fails it with cause.
func (p *Pending) abort(cause error) bool {
	if !p.state.CompareAndSwap(int32(StateQueued), int32(StateCancelled)) {
		return false
	}
	p.cancel(cause)
	p.finish(nil, cause)
	return true
}

// start marks the request dequeued. It fails if the request was cancelled.
func (p *Pending) start() bool {
	return p.state.CompareAndSwap(int32(StateQueued), int32(StateRunning))
}

func (p *Pending) complete(res *Result, err error) {
	p.state.Store(int32(StateDone))
	p.cancel(nil)
	p.finish(res, err)
}

func (p *Pending) finish(res *Result, err error) {
	p.once.Do(func() {
		p.result = res
		p.err = err
		close(p.done)
	})
}
