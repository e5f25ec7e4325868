// Package worker provides an asynchronous worker pool that turns dispatch
// records into execution events and publishes them.
//
// The pool decouples execution-log publishing from the dispatch hot path so a
// slow or unreachable event stream never delays a response.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/relay/pkg/dispatch"
	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/logger"
)

var (
	defaultNumWorkers     uint = 3
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Record dispatch.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives one execution event per job. Required.
	Publisher eventstream.Publisher

	// Source identifies this relay instance on every event.
	Source eventstream.EventSource

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds a single publish (defaults to 10s).
	PublishTimeout time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool publishes execution events asynchronously via a worker pool. It
// implements dispatch.Sink.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ dispatch.Sink = (*Pool)(nil)

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.Source.Service == "" {
		c.Source.Service = "relay"
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Record enqueues a dispatch record without blocking.
func (p *Pool) Record(_ context.Context, r dispatch.Record) {
	p.Enqueue(Job{Record: r})
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed",
			zap.String("backend", job.Record.BackendID),
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("backend", job.Record.BackendID),
			zap.String("outcome", string(job.Record.Outcome)),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("backend", job.Record.BackendID),
			zap.String("outcome", string(job.Record.Outcome)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
// Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("execution log worker stopped", zap.Uint("worker_id", id))
}

// processJob converts the job's record into an execution event and publishes
// it. Publish errors are logged and the event is dropped.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	event := NewExecutionEvent(job.Record, p.config.Source)
	if err := p.config.Publisher.PublishExecution(ctx, event); err != nil {
		p.logger.Error("publishing execution event failed",
			zap.String("event_id", event.EventID),
			zap.String("backend", job.Record.BackendID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("execution event published",
		zap.String("event_id", event.EventID),
		zap.String("backend", job.Record.BackendID),
	)
}

// NewExecutionEvent builds the event published for a dispatch record.
func NewExecutionEvent(r dispatch.Record, source eventstream.EventSource) *eventstream.ExecutionEvent {
	started := r.Timestamp
	if started.IsZero() {
		started = time.Now()
	}

	event := &eventstream.ExecutionEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeDispatchAttempt,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Attempt: eventstream.AttemptMeta{
			BackendID: r.BackendID,
			Outcome:   string(r.Outcome),
			LatencyMs: r.LatencyMs,
			SessionID: r.SessionID,
			StartedAt: started.UTC(),
		},
	}
	if r.Err != nil {
		event.Attempt.Error = r.Err.Error()
	}
	return event
}
