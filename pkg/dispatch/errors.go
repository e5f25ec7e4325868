package dispatch

import "errors"

var (
	// ErrBackendUnavailable is recorded when a backend's probe fails or
	// overruns its probe timeout.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendTimeout is recorded when a send overruns its timeout.
	ErrBackendTimeout = errors.New("backend timed out")

	// ErrMalformedOutput is recorded when a backend returns no usable text.
	ErrMalformedOutput = errors.New("malformed backend output")

	// ErrExhausted is recorded when every backend failed or was skipped and
	// the fallback answered.
	ErrExhausted = errors.New("all backends exhausted")
)
