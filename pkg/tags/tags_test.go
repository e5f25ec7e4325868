package tags_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/memory/local"
	"github.com/papercomputeco/relay/pkg/tags"
)

type call struct {
	op, persona, client, key, content string
}

type fakeMutator struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]bool
}

func (f *fakeMutator) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[c.op] {
		return errors.New("boom")
	}
	f.calls = append(f.calls, c)
	return nil
}

func (f *fakeMutator) Canonize(_ context.Context, personaID, content string) (memory.Entry, error) {
	return memory.Entry{Content: content}, f.record(call{op: "canonize", persona: personaID, content: content})
}

func (f *fakeMutator) AddClientFact(_ context.Context, clientID, personaID, key, value string) error {
	return f.record(call{op: "fact", persona: personaID, client: clientID, key: key, content: value})
}

func (f *fakeMutator) AddWorkingMemory(_ context.Context, personaID, content string) (*memory.Entry, error) {
	return nil, f.record(call{op: "remember", persona: personaID, content: content})
}

var _ = Describe("Processor", func() {
	var (
		ctx     context.Context
		mutator *fakeMutator
		proc    *tags.Processor
		scope   tags.Scope
	)

	BeforeEach(func() {
		ctx = context.Background()
		mutator = &fakeMutator{fail: map[string]bool{}}
		scope = tags.Scope{PersonaID: "ada", ClientID: "c1"}

		var err error
		proc, err = tags.NewProcessor(tags.Config{Mutator: mutator, Strip: true})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a mutator", func() {
		_, err := tags.NewProcessor(tags.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("returns text without directives unchanged", func() {
		text, muts := proc.Process(ctx, scope, "Just a plain answer.\n\nWith two paragraphs.")
		Expect(text).To(Equal("Just a plain answer.\n\nWith two paragraphs."))
		Expect(muts).To(BeEmpty())
	})

	It("applies each directive kind in order", func() {
		text, muts := proc.Process(ctx, scope, `Hello!
<memory:canonize>I published my notes in 1843.</memory:canonize>
<memory:fact key="favourite_engine">analytical</memory:fact>
<memory:remember> Client is debugging a loop. </memory:remember>
Goodbye.`)

		Expect(text).To(Equal("Hello!\n\nGoodbye."))
		Expect(muts).To(Equal([]tags.Mutation{
			{Kind: tags.KindCanonize, PersonaID: "ada", Content: "I published my notes in 1843."},
			{Kind: tags.KindFact, PersonaID: "ada", ClientID: "c1", Key: "favourite_engine", Content: "analytical"},
			{Kind: tags.KindRemember, PersonaID: "ada", Content: "Client is debugging a loop."},
		}))
		Expect(mutator.calls).To(HaveLen(3))
		Expect(mutator.calls[1]).To(Equal(call{op: "fact", persona: "ada", client: "c1", key: "favourite_engine", content: "analytical"}))
	})

	It("strips inline directives without leaving double spaces", func() {
		text, muts := proc.Process(ctx, scope, "I will <memory:remember>note this</memory:remember> remember that.")
		Expect(text).To(Equal("I will remember that."))
		Expect(muts).To(HaveLen(1))
	})

	It("accepts single-quoted attributes", func() {
		_, muts := proc.Process(ctx, scope, `<memory:fact key='city'>London</memory:fact>`)
		Expect(muts).To(HaveLen(1))
		Expect(muts[0].Key).To(Equal("city"))
	})

	DescribeTable("skips malformed directives without aborting",
		func(bad string) {
			text, muts := proc.Process(ctx, scope, "before "+bad+" after <memory:remember>kept</memory:remember>")

			Expect(muts).To(ConsistOf(tags.Mutation{Kind: tags.KindRemember, PersonaID: "ada", Content: "kept"}))
			Expect(text).To(HavePrefix("before"))
		},
		Entry("unknown kind", "<memory:forget>everything</memory:forget>"),
		Entry("fact without key", "<memory:fact>orphan</memory:fact>"),
		Entry("empty body", "<memory:canonize>   </memory:canonize>"),
		Entry("missing kind", "<memory:>x</memory:>"),
	)

	It("strips the opening tag of an unterminated directive and keeps its text", func() {
		text, muts := proc.Process(ctx, scope, "start <memory:canonize>never closed")
		Expect(muts).To(BeEmpty())
		Expect(text).To(Equal("start never closed"))
	})

	It("leaves a dangling prefix without a closing bracket in place", func() {
		text, muts := proc.Process(ctx, scope, "compare a <memory:x and b")
		Expect(muts).To(BeEmpty())
		Expect(text).To(Equal("compare a <memory:x and b"))
	})

	It("ignores mutation failures and continues", func() {
		mutator.fail["canonize"] = true

		text, muts := proc.Process(ctx, scope,
			"<memory:canonize>fails</memory:canonize>ok<memory:remember>works</memory:remember>")
		Expect(text).To(Equal("ok"))
		Expect(muts).To(ConsistOf(tags.Mutation{Kind: tags.KindRemember, PersonaID: "ada", Content: "works"}))
	})

	It("keeps markup when stripping is disabled", func() {
		keep, err := tags.NewProcessor(tags.Config{Mutator: mutator})
		Expect(err).NotTo(HaveOccurred())

		in := "hi <memory:remember>x</memory:remember>"
		text, muts := keep.Process(ctx, scope, in)
		Expect(text).To(Equal(in))
		Expect(muts).To(HaveLen(1))
	})

	It("applies directives through a memory router", func() {
		store := local.NewStore()
		router, err := memory.NewRouter(memory.RouterConfig{Store: store, WorkingCapacity: 2})
		Expect(err).NotTo(HaveOccurred())

		p, err := tags.NewProcessor(tags.Config{Mutator: router, Strip: true})
		Expect(err).NotTo(HaveOccurred())

		_, muts := p.Process(ctx, scope, `<memory:canonize>first program</memory:canonize>
<memory:fact key="name">Charles</memory:fact>
<memory:remember>one</memory:remember><memory:remember>two</memory:remember><memory:remember>three</memory:remember>`)
		Expect(muts).To(HaveLen(5))

		canonical, err := store.ReadLayer(ctx, "ada", "", memory.LayerCanonical)
		Expect(err).NotTo(HaveOccurred())
		Expect(canonical).To(HaveLen(1))

		facts, err := store.ReadLayer(ctx, "ada", "c1", memory.LayerClientFacts)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts[0].Content).To(Equal("Charles"))

		working, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
		Expect(err).NotTo(HaveOccurred())
		Expect(working).To(HaveLen(2))
		Expect(working[0].Content).To(Equal("two"))
	})
})
