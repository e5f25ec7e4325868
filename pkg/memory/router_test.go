package memory_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
	testutils "github.com/papercomputeco/relay/pkg/utils/test"
)

var _ = Describe("Router", func() {
	var (
		ctx    context.Context
		store  *testutils.MockStore
		router *memory.Router
	)

	newRouter := func(c memory.RouterConfig) *memory.Router {
		c.Store = store
		r, err := memory.NewRouter(c)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	seedLayer := func(layer memory.Layer, clientID string, n int) {
		for i := range n {
			e := memory.Entry{ID: fmt.Sprintf("%s-%d", layer, i), Content: fmt.Sprintf("%s %d", layer, i)}
			if layer == memory.LayerClientFacts {
				Expect(store.UpsertFact(ctx, "ada", clientID, fmt.Sprintf("k%d", i), e.Content)).To(Succeed())
				continue
			}
			Expect(store.AppendEntry(ctx, "ada", clientID, layer, e)).To(Succeed())
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = testutils.NewMockStore()
		Expect(store.WritePersona(ctx, &memory.Persona{ID: "ada", Name: "Ada", Core: "A mathematician."})).To(Succeed())
		router = newRouter(memory.RouterConfig{WorkingCapacity: 5})
	})

	It("requires a store", func() {
		_, err := memory.NewRouter(memory.RouterConfig{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Persona", func() {
		It("loads a persona", func() {
			p, err := router.Persona(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name).To(Equal("Ada"))
		})

		It("returns ErrPersonaNotFound for unknown personas", func() {
			_, err := router.Persona(ctx, "ghost")
			Expect(err).To(MatchError(memory.ErrPersonaNotFound))
		})

		It("surfaces ErrStoreUnavailable when the store is unreachable", func() {
			store.FailPersona = true
			_, err := router.Persona(ctx, "ada")
			Expect(err).To(MatchError(memory.ErrStoreUnavailable))
		})
	})

	Describe("Payload", func() {
		BeforeEach(func() {
			seedLayer(memory.LayerBiography, "", 30)
			seedLayer(memory.LayerCanonical, "", 60)
			seedLayer(memory.LayerClientFacts, "c1", 50)
			seedLayer(memory.LayerWorking, "", 30)
		})

		It("never exceeds the quota for any mode and capability", func() {
			history := make([]any, 0, 80)
			for i := range 80 {
				history = append(history, memory.Turn{Role: "user", Content: fmt.Sprintf("turn %d", i)})
			}

			table := memory.DefaultQuotaTable()
			for _, m := range memory.Modes() {
				for _, c := range memory.Capabilities() {
					p := router.Payload(ctx, memory.PayloadRequest{
						PersonaID:  "ada",
						ClientID:   "c1",
						History:    history,
						Mode:       m,
						Capability: c,
					})
					q := table.Lookup(m, c)

					Expect(p.Mode).To(Equal(m))
					Expect(p.Capability).To(Equal(c))
					Expect(len(p.Biography)).To(BeNumerically("<=", q.Biography))
					Expect(len(p.Canonical)).To(BeNumerically("<=", q.Canonical))
					Expect(len(p.ClientFacts)).To(BeNumerically("<=", q.ClientFacts))
					Expect(len(p.Working)).To(BeNumerically("<=", q.Working))
					Expect(len(p.History)).To(BeNumerically("<=", q.History))
				}
			}
		})

		It("keeps the first biography entries and the most recent of the rest", func() {
			p := router.Payload(ctx, memory.PayloadRequest{
				PersonaID:  "ada",
				ClientID:   "c1",
				Mode:       memory.ModeMinimal,
				Capability: memory.CapabilitySmall,
			})

			Expect(p.Biography[0].Content).To(Equal("biography 0"))
			Expect(p.Canonical[len(p.Canonical)-1].Content).To(Equal("canonical 59"))
			Expect(p.Working[len(p.Working)-1].Content).To(Equal("working 29"))
			Expect(p.ClientFacts[len(p.ClientFacts)-1].Key).To(Equal("k49"))
		})

		It("honors configured quota overrides", func() {
			r := newRouter(memory.RouterConfig{
				Quotas: memory.QuotaTable{
					{Mode: memory.ModeStandard, Capability: memory.CapabilityMedium}: {Canonical: 1},
				},
			})

			p := r.Payload(ctx, memory.PayloadRequest{PersonaID: "ada", ClientID: "c1"})
			Expect(p.Canonical).To(HaveLen(1))
			Expect(p.Biography).To(BeEmpty())
		})

		It("resolves the mode from the persona default before the backend preference", func() {
			p := router.Payload(ctx, memory.PayloadRequest{
				PersonaID:      "ada",
				PersonaDefault: memory.ModeMinimal,
				PreferredMode:  memory.ModeMaximal,
				Capability:     memory.CapabilityLarge,
			})
			Expect(p.Mode).To(Equal(memory.ModeMinimal))
		})

		It("degrades a failing layer to empty and keeps the rest", func() {
			store.SetFailLayer(memory.LayerCanonical, true)

			p := router.Payload(ctx, memory.PayloadRequest{PersonaID: "ada", ClientID: "c1"})
			Expect(p.Canonical).To(BeEmpty())
			Expect(p.Degraded).To(ConsistOf(memory.LayerCanonical))
			Expect(p.Biography).NotTo(BeEmpty())
			Expect(p.Working).NotTo(BeEmpty())
		})

		It("normalizes the supplied history", func() {
			p := router.Payload(ctx, memory.PayloadRequest{
				PersonaID: "ada",
				ClientID:  "c1",
				History:   []any{"human: hi", map[string]string{"role": "ai", "content": "hello"}},
			})
			Expect(p.History).To(Equal([]memory.Turn{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
			}))
		})
	})

	Describe("Canonize", func() {
		It("never decreases the canonical count across mutations", func() {
			last := 0
			for i := range 10 {
				_, err := router.Canonize(ctx, "ada", fmt.Sprintf("event %d", i))
				Expect(err).NotTo(HaveOccurred())
				_, _ = router.AddWorkingMemory(ctx, "ada", fmt.Sprintf("note %d", i))
				Expect(router.AddClientFact(ctx, "c1", "ada", "k", fmt.Sprintf("%d", i))).To(Succeed())

				entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerCanonical)
				Expect(err).NotTo(HaveOccurred())
				Expect(len(entries)).To(BeNumerically(">=", last))
				last = len(entries)
			}
			Expect(last).To(Equal(10))
		})

		It("rejects empty content", func() {
			_, err := router.Canonize(ctx, "ada", "  ")
			Expect(err).To(MatchError(memory.ErrInvalidMutation))
		})
	})

	Describe("AddWorkingMemory", func() {
		It("evicts the single oldest entry when inserting capacity+1 entries", func() {
			capacity := router.WorkingCapacity()
			for i := range capacity + 1 {
				_, err := router.AddWorkingMemory(ctx, "ada", fmt.Sprintf("obs %d", i))
				Expect(err).NotTo(HaveOccurred())
			}

			entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(capacity))

			contents := make([]string, 0, len(entries))
			for _, e := range entries {
				contents = append(contents, e.Content)
			}
			Expect(contents).NotTo(ContainElement("obs 0"))
			for i := 1; i <= capacity; i++ {
				Expect(contents[i-1]).To(Equal(fmt.Sprintf("obs %d", i)))
			}
		})

		It("returns the evicted entry", func() {
			for i := range router.WorkingCapacity() {
				evicted, err := router.AddWorkingMemory(ctx, "ada", fmt.Sprintf("obs %d", i))
				Expect(err).NotTo(HaveOccurred())
				Expect(evicted).To(BeNil())
			}

			evicted, err := router.AddWorkingMemory(ctx, "ada", "overflow")
			Expect(err).NotTo(HaveOccurred())
			Expect(evicted).NotTo(BeNil())
			Expect(evicted.Content).To(Equal("obs 0"))
		})

		It("trims a store that already holds more than capacity", func() {
			seedLayer(memory.LayerWorking, "", 12)

			_, err := router.AddWorkingMemory(ctx, "ada", "fresh")
			Expect(err).NotTo(HaveOccurred())

			entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(5))
			Expect(entries[4].Content).To(Equal("fresh"))
		})

		It("reloads from the store after a failed write", func() {
			store.FailReplace = true
			_, err := router.AddWorkingMemory(ctx, "ada", "lost")
			Expect(err).To(HaveOccurred())

			store.FailReplace = false
			_, err = router.AddWorkingMemory(ctx, "ada", "kept")
			Expect(err).NotTo(HaveOccurred())

			entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Content).To(Equal("kept"))
		})

		It("builds on working memory written to the store directly", func() {
			_, err := router.AddWorkingMemory(ctx, "ada", "first")
			Expect(err).NotTo(HaveOccurred())

			Expect(store.ReplaceLayer(ctx, "ada", "", memory.LayerWorking, []memory.Entry{
				{ID: "outside", Content: "written elsewhere"},
			})).To(Succeed())

			_, err = router.AddWorkingMemory(ctx, "ada", "second")
			Expect(err).NotTo(HaveOccurred())

			entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Content).To(Equal("written elsewhere"))
			Expect(entries[1].Content).To(Equal("second"))
		})

		It("does not lose updates under concurrent writers", func() {
			r := newRouter(memory.RouterConfig{WorkingCapacity: 100})

			var wg sync.WaitGroup
			for i := range 40 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := r.AddWorkingMemory(ctx, "ada", fmt.Sprintf("obs %d", i))
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(40))
		})
	})

	Describe("AddClientFact", func() {
		It("upserts facts", func() {
			Expect(router.AddClientFact(ctx, "c1", "ada", "city", "London")).To(Succeed())
			Expect(router.AddClientFact(ctx, "c1", "ada", "city", "Paris")).To(Succeed())

			p := router.Payload(ctx, memory.PayloadRequest{PersonaID: "ada", ClientID: "c1"})
			Expect(p.ClientFacts).To(Equal([]memory.Fact{{Key: "city", Value: "Paris"}}))
		})

		It("requires a key", func() {
			Expect(router.AddClientFact(ctx, "c1", "ada", "", "v")).To(MatchError(memory.ErrInvalidMutation))
		})
	})

	Describe("History", func() {
		It("appends and reads back turns", func() {
			Expect(router.AppendHistory(ctx, "ada", "c1",
				memory.Turn{Role: "user", Content: "hi"},
				memory.Turn{Role: "assistant", Content: "hello"},
			)).To(Succeed())

			Expect(router.History(ctx, "ada", "c1")).To(Equal([]memory.Turn{
				{Role: "user", Content: "hi"},
				{Role: "assistant", Content: "hello"},
			}))
		})

		It("trims history beyond capacity", func() {
			r := newRouter(memory.RouterConfig{HistoryCapacity: 3})
			for i := range 5 {
				Expect(r.AppendHistory(ctx, "ada", "c1", memory.Turn{Role: "user", Content: fmt.Sprintf("m%d", i)})).To(Succeed())
			}

			turns := r.History(ctx, "ada", "c1")
			Expect(turns).To(HaveLen(3))
			Expect(turns[0].Content).To(Equal("m2"))
		})

		It("degrades to empty on read failure", func() {
			store.SetFailLayer(memory.LayerHistory, true)
			Expect(router.History(ctx, "ada", "c1")).To(BeEmpty())
		})
	})
})
