package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// session is one conversation thread. Its queue is drained by exactly one
// worker goroutine, so submission order is execution order.
type session struct {
	id        string
	personaID string
	clientID  string

	queue chan *Pending

	// ctx is cancelled with ErrSessionReclaimed or, through the manager,
	// ErrManagerClosed.
	ctx    context.Context
	cancel context.CancelCauseFunc

	mu           sync.Mutex
	waiting      []*Pending
	busy         bool
	lastActivity time.Time
}

// Info is a point-in-time view of a session.
type Info struct {
	ID           string    `json:"id"`
	PersonaID    string    `json:"persona_id"`
	ClientID     string    `json:"client_id"`
	QueueDepth   int       `json:"queue_depth"`
	Busy         bool      `json:"busy"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

func (s *session) push(p *Pending) {
	s.mu.Lock()
	s.waiting = append(s.waiting, p)
	s.mu.Unlock()
}

func (s *session) remove(p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.waiting {
		if w == p {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

func (s *session) setBusy(busy bool, now time.Time) {
	s.mu.Lock()
	s.busy = busy
	s.lastActivity = now
	s.mu.Unlock()
}

// idleSince reports whether the session holds no request, queued or
// dequeued, and has seen no activity since cutoff.
func (s *session) idleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.busy && len(s.waiting) == 0 && s.lastActivity.Before(cutoff)
}

// queued returns the requests that have not been dequeued, oldest first.
func (s *session) queued() []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Pending, 0, len(s.waiting))
	for _, p := range s.waiting {
		if p.State() == StateQueued {
			out = append(out, p)
		}
	}
	return out
}

func (s *session) info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := 0
	for _, p := range s.waiting {
		if p.State() == StateQueued {
			depth++
		}
	}

	return Info{
		ID:           s.id,
		PersonaID:    s.personaID,
		ClientID:     s.clientID,
		QueueDepth:   depth,
		Busy:         s.busy,
		LastActivity: s.lastActivity,
	}
}

// run is the session worker. It exits once the session is reclaimed or the
// manager closes.
func (m *Manager) run(s *session) {
	defer m.wg.Done()

	idle := time.NewTimer(m.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case p := <-s.queue:
			// Busy covers the waits for a global slot and the persona+client
			// lock, so the janitor never reclaims a session mid-request.
			s.setBusy(true, m.now())
			m.execute(s, p)
			s.setBusy(false, m.now())
			idle.Reset(m.idleTimeout)

		case <-idle.C:
			if m.reclaimIfEmpty(s) {
				m.logger.Debug("idle session reclaimed by worker", zap.String("session_id", s.id))
				return
			}
			idle.Reset(m.idleTimeout)

		case <-s.ctx.Done():
			m.drain(s)
			return
		}
	}
}

// drain fails every request still in the queue with the session's cause.
func (m *Manager) drain(s *session) {
	cause := causeOf(s.ctx)

	for {
		select {
		case p := <-s.queue:
			if p.abort(cause) {
				m.logger.Debug("queued request discarded",
					zap.String("session_id", s.id),
					zap.Error(cause),
				)
			}
			s.remove(p)
		default:
			return
		}
	}
}

// execute runs one dequeued request. The global slot is taken before the
// request is marked dequeued, so a request waiting for a slot can still be
// cancelled.
func (m *Manager) execute(s *session, p *Pending) {
	defer s.remove(p)

	if err := m.sem.Acquire(p.ctx, 1); err != nil {
		p.abort(causeOf(p.ctx))
		return
	}
	defer m.sem.Release(1)

	// Acquire can succeed on an already cancelled context when a slot is free.
	if p.ctx.Err() != nil {
		p.abort(causeOf(p.ctx))
		return
	}

	if !p.start() {
		return
	}

	unlock := m.pairs.Lock(pairKey(s.personaID, s.clientID))
	defer unlock()

	start := time.Now()
	res, err := m.handle(context.WithoutCancel(p.ctx), p.req)
	p.complete(res, err)

	fields := []zap.Field{
		zap.String("session_id", s.id),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		m.logger.Warn("request failed", append(fields, zap.Error(err))...)
		return
	}
	m.logger.Debug("request completed", append(fields, zap.String("backend", res.BackendUsed))...)
}

// causeOf returns why ctx ended, defaulting to ErrManagerClosed.
func causeOf(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrManagerClosed
	}
	return cause
}

// handle calls the handler, converting a panic into an error.
func (m *Manager) handle(ctx context.Context, req Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("request handler panicked",
				zap.String("session_id", req.SessionID),
				zap.Any("panic", r),
			)
			res, err = nil, fmt.Errorf("request handler panicked: %v", r)
		}
	}()

	res, err = m.handler.Handle(ctx, req)
	if err == nil && res == nil {
		err = errors.New("request handler returned no result")
	}
	return res, err
}
