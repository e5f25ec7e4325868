package fallback_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/backend/fallback"
)

var _ = Describe("Fallback Backend", func() {
	It("is always available and named fallback", func() {
		b := fallback.New("")
		Expect(b.Name()).To(Equal("fallback"))
		Expect(b.IsAvailable(context.Background())).To(BeTrue())
	})

	It("returns deterministic non-empty text", func() {
		b := fallback.New("")
		first, err := b.Send(context.Background(), "anything")
		Expect(err).NotTo(HaveOccurred())
		second, err := b.Send(context.Background(), "else")
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(fallback.DefaultText))
		Expect(second).To(Equal(first))
	})

	It("uses custom text", func() {
		text, err := fallback.New("  Back soon.  ").Send(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Back soon."))
	})
})
