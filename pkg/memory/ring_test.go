package memory_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
)

var _ = Describe("Ring", func() {
	It("keeps items oldest first below capacity", func() {
		r := memory.NewRing[int](3)
		r.Push(1)
		r.Push(2)

		Expect(r.Len()).To(Equal(2))
		Expect(r.Items()).To(Equal([]int{1, 2}))
	})

	It("evicts the oldest item once full", func() {
		r := memory.NewRing[int](3)
		for i := 1; i <= 3; i++ {
			_, evicted := r.Push(i)
			Expect(evicted).To(BeFalse())
		}

		old, evicted := r.Push(4)
		Expect(evicted).To(BeTrue())
		Expect(old).To(Equal(1))
		Expect(r.Items()).To(Equal([]int{2, 3, 4}))
		Expect(r.Len()).To(Equal(3))
	})

	It("wraps around repeatedly", func() {
		r := memory.NewRing[int](2)
		for i := 1; i <= 7; i++ {
			r.Push(i)
		}
		Expect(r.Items()).To(Equal([]int{6, 7}))

		oldest, ok := r.Oldest()
		Expect(ok).To(BeTrue())
		Expect(oldest).To(Equal(6))
	})

	It("raises non-positive capacities to one", func() {
		r := memory.NewRing[string](0)
		Expect(r.Cap()).To(Equal(1))
		r.Push("a")
		r.Push("b")
		Expect(r.Items()).To(Equal([]string{"b"}))
	})

	It("reports empty rings", func() {
		r := memory.NewRing[int](2)
		_, ok := r.Oldest()
		Expect(ok).To(BeFalse())
		Expect(r.Items()).To(BeEmpty())
	})
})
