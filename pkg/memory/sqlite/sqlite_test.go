package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/memory/sqlite"
	"github.com/papercomputeco/relay/pkg/memory/storetest"
)

var _ = storetest.DescribeStore("sqlite.Store", func() memory.Store {
	s, err := sqlite.NewStore(context.Background(), ":memory:")
	Expect(err).NotTo(HaveOccurred())
	return s
})

var _ = Describe("SQLite Memory Store", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("creates a file database", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "memory.db")

		s, err := sqlite.NewStore(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("persists layers across reopen", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "memory.db")

		s, err := sqlite.NewStore(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.WritePersona(ctx, &memory.Persona{ID: "ada", Name: "Ada", DefaultMode: memory.ModeMinimal})).To(Succeed())
		Expect(s.AppendEntry(ctx, "ada", "", memory.LayerCanonical, memory.Entry{ID: "e1", Content: "born"})).To(Succeed())
		Expect(s.UpsertFact(ctx, "ada", "c1", "city", "London")).To(Succeed())
		Expect(s.Close()).To(Succeed())

		reopened, err := sqlite.NewStore(ctx, dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		p, err := reopened.ReadPersona(ctx, "ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.DefaultMode).To(Equal(memory.ModeMinimal))

		canonical, err := reopened.ReadLayer(ctx, "ada", "", memory.LayerCanonical)
		Expect(err).NotTo(HaveOccurred())
		Expect(canonical).To(HaveLen(1))
		Expect(canonical[0].Content).To(Equal("born"))

		facts, err := reopened.ReadLayer(ctx, "ada", "c1", memory.LayerClientFacts)
		Expect(err).NotTo(HaveOccurred())
		Expect(facts).To(HaveLen(1))
		Expect(facts[0].Key).To(Equal("city"))
	})

	It("fails operations after Close", func() {
		s, err := sqlite.NewStore(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		_, err = s.ReadLayer(ctx, "ada", "", memory.LayerWorking)
		Expect(err).To(MatchError(memory.ErrStore))
	})
})
