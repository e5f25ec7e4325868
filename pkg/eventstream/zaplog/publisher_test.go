package zaplog_test

import (
	"bytes"
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/eventstream/zaplog"
	"github.com/papercomputeco/relay/pkg/logger"
)

var _ = Describe("Publisher", func() {
	It("logs events as structured lines", func() {
		var buf bytes.Buffer
		p := zaplog.NewPublisher(logger.New(logger.WithJSON(true), logger.WithWriter(&buf)))

		err := p.PublishExecution(context.Background(), &eventstream.ExecutionEvent{
			EventType: eventstream.EventTypeDispatchAttempt,
			EventID:   "evt_1",
			Attempt: eventstream.AttemptMeta{
				BackendID: "ollama",
				Outcome:   "timeout",
				Error:     "backend timed out",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Close()).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring(`"msg":"relay.dispatch.attempt"`))
		Expect(out).To(ContainSubstring(`"backend":"ollama"`))
		Expect(out).To(ContainSubstring(`"error":"backend timed out"`))
	})

	It("truncates long backend errors", func() {
		var buf bytes.Buffer
		p := zaplog.NewPublisher(logger.New(logger.WithJSON(true), logger.WithWriter(&buf)))

		Expect(p.PublishExecution(context.Background(), &eventstream.ExecutionEvent{
			EventType: eventstream.EventTypeDispatchAttempt,
			Attempt:   eventstream.AttemptMeta{BackendID: "openai", Error: strings.Repeat("x", 2000)},
		})).To(Succeed())

		Expect(buf.String()).To(ContainSubstring(strings.Repeat("x", 512) + `..."`))
		Expect(buf.String()).NotTo(ContainSubstring(strings.Repeat("x", 513)))
	})

	It("rejects nil events", func() {
		p := zaplog.NewPublisher(nil)
		Expect(p.PublishExecution(context.Background(), nil)).To(MatchError(eventstream.ErrNilExecutionEvent))
	})
})
