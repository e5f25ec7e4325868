// Package storetest provides a shared ginkgo conformance suite for
// memory.Store implementations.
package storetest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
)

// DescribeStore registers conformance specs for a memory.Store. newStore is
// called before each spec; the returned store is closed after it.
func DescribeStore(name string, newStore func() memory.Store) bool {
	return Describe(name+" conformance", func() {
		var (
			store memory.Store
			ctx   context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			store = newStore()
		})

		AfterEach(func() {
			Expect(store.Close()).To(Succeed())
		})

		entry := func(id, content string) memory.Entry {
			return memory.Entry{ID: id, Content: content, CreatedAt: time.Now().UTC()}
		}

		Describe("personas", func() {
			It("returns NotFoundError for unknown personas", func() {
				_, err := store.ReadPersona(ctx, "ghost")
				Expect(err).To(HaveOccurred())
				Expect(err).To(MatchError(memory.ErrPersonaNotFound))
			})

			It("round trips a persona", func() {
				Expect(store.WritePersona(ctx, &memory.Persona{
					ID:          "ada",
					Name:        "Ada",
					Core:        "A mathematician.",
					DefaultMode: memory.ModeMinimal,
				})).To(Succeed())

				p, err := store.ReadPersona(ctx, "ada")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Name).To(Equal("Ada"))
				Expect(p.Core).To(Equal("A mathematician."))
				Expect(p.DefaultMode).To(Equal(memory.ModeMinimal))
			})

			It("replaces a persona on rewrite", func() {
				Expect(store.WritePersona(ctx, &memory.Persona{ID: "ada", Name: "Ada"})).To(Succeed())
				Expect(store.WritePersona(ctx, &memory.Persona{ID: "ada", Name: "Ada L."})).To(Succeed())

				p, err := store.ReadPersona(ctx, "ada")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Name).To(Equal("Ada L."))
			})
		})

		Describe("layers", func() {
			It("returns an empty layer when nothing was written", func() {
				entries, err := store.ReadLayer(ctx, "ada", "c1", memory.LayerWorking)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
			})

			It("appends entries in order", func() {
				for _, c := range []string{"one", "two", "three"} {
					Expect(store.AppendEntry(ctx, "ada", "", memory.LayerCanonical, entry(c, c))).To(Succeed())
				}

				entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerCanonical)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(3))
				Expect(entries[0].Content).To(Equal("one"))
				Expect(entries[2].Content).To(Equal("three"))
			})

			It("ignores the client id for persona-scoped layers", func() {
				Expect(store.AppendEntry(ctx, "ada", "c1", memory.LayerBiography, entry("b1", "born 1815"))).To(Succeed())

				entries, err := store.ReadLayer(ctx, "ada", "c2", memory.LayerBiography)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})

			It("partitions client-scoped layers by client", func() {
				h := entry("h1", "hello")
				h.Role = memory.RoleUser
				Expect(store.AppendEntry(ctx, "ada", "c1", memory.LayerHistory, h)).To(Succeed())

				entries, err := store.ReadLayer(ctx, "ada", "c2", memory.LayerHistory)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())

				entries, err = store.ReadLayer(ctx, "ada", "c1", memory.LayerHistory)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].Role).To(Equal(memory.RoleUser))
			})

			It("rejects unknown layers", func() {
				_, err := store.ReadLayer(ctx, "ada", "", memory.Layer("bogus"))
				Expect(err).To(MatchError(memory.ErrUnknownLayer))
			})
		})

		Describe("facts", func() {
			It("upserts by key", func() {
				Expect(store.UpsertFact(ctx, "ada", "c1", "city", "London")).To(Succeed())
				Expect(store.UpsertFact(ctx, "ada", "c1", "pet", "cat")).To(Succeed())
				Expect(store.UpsertFact(ctx, "ada", "c1", "city", "Paris")).To(Succeed())

				facts, err := store.ReadLayer(ctx, "ada", "c1", memory.LayerClientFacts)
				Expect(err).NotTo(HaveOccurred())
				Expect(facts).To(HaveLen(2))

				values := map[string]string{}
				for _, f := range facts {
					values[f.Key] = f.Content
				}
				Expect(values).To(HaveKeyWithValue("city", "Paris"))
				Expect(values).To(HaveKeyWithValue("pet", "cat"))
			})
		})

		Describe("ReplaceLayer", func() {
			It("rewrites mutable layers", func() {
				Expect(store.AppendEntry(ctx, "ada", "", memory.LayerWorking, entry("w1", "old"))).To(Succeed())
				Expect(store.ReplaceLayer(ctx, "ada", "", memory.LayerWorking, []memory.Entry{
					entry("w2", "new-1"),
					entry("w3", "new-2"),
				})).To(Succeed())

				entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerWorking)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(2))
				Expect(entries[0].Content).To(Equal("new-1"))
				Expect(entries[1].Content).To(Equal("new-2"))
			})

			It("refuses to rewrite the canonical layer", func() {
				Expect(store.AppendEntry(ctx, "ada", "", memory.LayerCanonical, entry("c1", "fixed"))).To(Succeed())

				err := store.ReplaceLayer(ctx, "ada", "", memory.LayerCanonical, nil)
				Expect(err).To(MatchError(memory.ErrImmutableLayer))

				entries, err := store.ReadLayer(ctx, "ada", "", memory.LayerCanonical)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
			})
		})

		It("pings while open", func() {
			Expect(store.Ping(ctx)).To(Succeed())
		})
	})
}
