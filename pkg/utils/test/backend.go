package testutils

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockBackend is a configurable backend.Backend for tests.
type MockBackend struct {
	name string

	// Unavailable makes IsAvailable report false.
	Unavailable bool

	// ProbeDelay delays IsAvailable, honoring the context.
	ProbeDelay time.Duration

	// Reply is returned by Send. Defaults to "reply from <name>".
	Reply string

	// Err is returned by Send when set.
	Err error

	// SendDelay delays Send, honoring the context.
	SendDelay time.Duration

	// Block, when set, makes Send wait for the channel to close while
	// ignoring its context.
	Block chan struct{}

	// SendFunc overrides Send entirely.
	SendFunc func(ctx context.Context, prompt string) (string, error)

	probes atomic.Int32
	sends  atomic.Int32

	mu      sync.Mutex
	prompts []string
}

// NewMockBackend creates a healthy mock backend.
func NewMockBackend(name string) *MockBackend {
	return &MockBackend{name: name}
}

func (m *MockBackend) Name() string {
	return m.name
}

func (m *MockBackend) IsAvailable(ctx context.Context) bool {
	m.probes.Add(1)

	if m.ProbeDelay > 0 {
		select {
		case <-time.After(m.ProbeDelay):
		case <-ctx.Done():
			return false
		}
	}
	return !m.Unavailable
}

func (m *MockBackend) Send(ctx context.Context, prompt string) (string, error) {
	m.sends.Add(1)

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, prompt)
	}

	if m.Block != nil {
		<-m.Block
	}

	if m.SendDelay > 0 {
		select {
		case <-time.After(m.SendDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Err != nil {
		return "", m.Err
	}
	if m.Reply != "" {
		return m.Reply, nil
	}
	return "reply from " + m.name, nil
}

func (m *MockBackend) Close() error {
	return nil
}

// Probes returns how many times IsAvailable was called.
func (m *MockBackend) Probes() int {
	return int(m.probes.Load())
}

// Sends returns how many times Send was called.
func (m *MockBackend) Sends() int {
	return int(m.sends.Load())
}

// Prompts returns the prompts Send received.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
