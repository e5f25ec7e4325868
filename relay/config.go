package relay

import (
	"time"

	"github.com/papercomputeco/relay/relay/session"
)

// Config is the relay server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Sessions configures the session queue manager. Its Handler is set to
	// the server's pipeline.
	Sessions session.Config

	// RequestTimeout bounds how long a caller waits for a response, queueing
	// included (defaults to 2m).
	RequestTimeout time.Duration

	// ShutdownTimeout bounds how long Close waits for in-flight requests
	// (defaults to 30s).
	ShutdownTimeout time.Duration
}

const (
	defaultRequestTimeout  = 2 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)
