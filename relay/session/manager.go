// Package session serializes requests per session while letting different
// sessions run concurrently under a global cap.
//
// Each session owns a bounded FIFO queue drained by a single worker
// goroutine. Workers take a slot of a shared semaphore before dequeuing, and
// requests addressing the same persona and client are further serialized
// across sessions by a keyed mutex. Sessions that hold no request are
// reclaimed once idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/utils"
)

const (
	DefaultMaxConcurrent = 8
	DefaultQueueSize     = 32
	DefaultIdleTimeout   = 10 * time.Minute
)

// Config is the configuration for a Manager.
type Config struct {
	// Handler executes dequeued requests. Required.
	Handler Handler

	// MaxConcurrent caps requests executing across all sessions (defaults to 8).
	MaxConcurrent int64

	// QueueSize bounds each session's pending queue (defaults to 32).
	QueueSize int

	// IdleTimeout is the inactivity window after which a session is
	// reclaimed (defaults to 10m).
	IdleTimeout time.Duration

	// JanitorInterval is how often stale sessions are swept (defaults to
	// half the idle timeout).
	JanitorInterval time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger

	// Now overrides the clock used for activity timestamps.
	Now func() time.Time
}

// Manager owns the sessions.
type Manager struct {
	handler     Handler
	queueSize   int
	idleTimeout time.Duration
	logger      *zap.Logger
	now         func() time.Time

	sem   *semaphore.Weighted
	pairs *utils.KeyedMutex

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool

	wg          sync.WaitGroup
	janitorDone chan struct{}
}

// NewManager creates a Manager and starts its janitor.
func NewManager(c Config) (*Manager, error) {
	if c.Handler == nil {
		return nil, errors.New("session manager requires a handler")
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = c.IdleTimeout / 2
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	ctx, cancel := context.WithCancelCause(context.Background())

	m := &Manager{
		handler:     c.Handler,
		queueSize:   c.QueueSize,
		idleTimeout: c.IdleTimeout,
		logger:      logger.OrNop(c.Logger),
		now:         c.Now,
		sem:         semaphore.NewWeighted(c.MaxConcurrent),
		pairs:       utils.NewKeyedMutex(),
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*session),
		janitorDone: make(chan struct{}),
	}

	go m.janitor(c.JanitorInterval)

	return m, nil
}

// Submit queues a request on its session, creating the session on first use.
func (m *Manager) Submit(req Request) (*Pending, error) {
	if req.SessionID == "" || req.PersonaID == "" {
		return nil, fmt.Errorf("%w: session_id and persona_id are required", ErrInvalidRequest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	s, ok := m.sessions[req.SessionID]
	if !ok {
		s = m.newSession(req)
	} else if s.personaID != req.PersonaID || s.clientID != req.ClientID {
		return nil, fmt.Errorf("%w: session %s belongs to persona %q client %q",
			ErrSessionBinding, s.id, s.personaID, s.clientID)
	}

	p := newPending(s.ctx, req)
	s.push(p)

	select {
	case s.queue <- p:
	default:
		s.remove(p)
		p.cancel(ErrQueueFull)
		return nil, fmt.Errorf("%w: session %s holds %d requests", ErrQueueFull, s.id, m.queueSize)
	}

	s.touch(m.now())
	return p, nil
}

// newSession registers a session and starts its worker. Callers hold m.mu.
func (m *Manager) newSession(req Request) *session {
	ctx, cancel := context.WithCancelCause(m.ctx)
	s := &session{
		id:           req.SessionID,
		personaID:    req.PersonaID,
		clientID:     req.ClientID,
		queue:        make(chan *Pending, m.queueSize),
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: m.now(),
	}
	m.sessions[s.id] = s

	m.wg.Add(1)
	go m.run(s)

	m.logger.Debug("session created",
		zap.String("session_id", s.id),
		zap.String("persona_id", s.personaID),
		zap.String("client_id", s.clientID),
	)
	return s
}

// Do submits a request and waits for its result. If ctx ends while the
// request is queued it is cancelled; if it is already running Do returns
// ctx.Err() and the request runs to completion.
func (m *Manager) Do(ctx context.Context, req Request) (*Result, error) {
	p, err := m.Submit(req)
	if err != nil {
		return nil, err
	}

	res, err := p.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		if p.Cancel() {
			m.logger.Debug("queued request cancelled by caller", zap.String("session_id", req.SessionID))
		}
		return nil, ctx.Err()
	}
	return res, err
}

// CancelPending cancels every request of a session that has not been
// dequeued and returns how many were cancelled.
func (m *Manager) CancelPending(sessionID string) int {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return 0
	}

	n := 0
	for _, p := range s.queued() {
		if p.Cancel() {
			n++
		}
	}
	return n
}

// Sessions returns a snapshot of the live sessions.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.info())
	}
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// reclaimIfEmpty removes s when nothing is queued. It is called by the
// session's own worker.
func (m *Manager) reclaimIfEmpty(s *session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(s.queue) > 0 || m.sessions[s.id] != s {
		return false
	}
	delete(m.sessions, s.id)
	s.cancel(ErrSessionReclaimed)
	return true
}

// janitor sweeps sessions that hold no request and whose last activity is
// older than the idle window.
func (m *Manager) janitor(interval time.Duration) {
	defer close(m.janitorDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if !s.idleSince(cutoff) {
			continue
		}
		delete(m.sessions, id)
		s.cancel(ErrSessionReclaimed)
		m.logger.Info("stale session reclaimed", zap.String("session_id", id))
	}
}

// discard ends a session and fails whatever it still holds queued.
func (m *Manager) discard(s *session, cause error) int {
	s.cancel(cause)

	n := 0
	for _, p := range s.queued() {
		if p.abort(cause) {
			n++
		}
	}
	return n
}

// Close stops intake, fails queued requests with ErrManagerClosed and waits
// for in-flight requests to finish or ctx to end.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.cancel(ErrManagerClosed)
	<-m.janitorDone

	for _, s := range sessions {
		m.discard(s, ErrManagerClosed)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.mu.Lock()
		clear(m.sessions)
		m.mu.Unlock()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight requests: %w", ctx.Err())
	}
}
