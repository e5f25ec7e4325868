package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/relay/pkg/dispatch"
)

// RecordingSink collects dispatch records.
type RecordingSink struct {
	mu      sync.Mutex
	records []dispatch.Record
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Record(_ context.Context, r dispatch.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Records returns a copy of everything recorded so far.
func (s *RecordingSink) Records() []dispatch.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]dispatch.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Outcomes returns "backend:outcome" pairs in record order.
func (s *RecordingSink) Outcomes() []string {
	records := s.Records()
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.BackendID+":"+string(r.Outcome))
	}
	return out
}
