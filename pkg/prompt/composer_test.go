package prompt_test

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/prompt"
)

func entries(prefix string, n int) []memory.Entry {
	out := make([]memory.Entry, 0, n)
	for i := range n {
		out = append(out, memory.Entry{ID: fmt.Sprintf("%s-%d", prefix, i), Content: fmt.Sprintf("%s note number %d", prefix, i)})
	}
	return out
}

var _ = Describe("EstimateTokens", func() {
	DescribeTable("estimates ceil(words * factor)",
		func(text string, factor float64, expected int) {
			Expect(prompt.EstimateTokens(text, factor)).To(Equal(expected))
		},
		Entry("empty text", "", 1.3, 0),
		Entry("three words", "one two three", 1.3, 4),
		Entry("ten words", "a b c d e f g h i j", 1.3, 13),
		Entry("custom factor", "one two", 2.0, 4),
		Entry("default factor when unset", "one two three", 0.0, 4),
		Entry("collapses whitespace", "  one \n\n two\tthree ", 1.0, 3),
	)
})

var _ = Describe("Composer", func() {
	var (
		composer *prompt.Composer
		core     prompt.PersonaCore
	)

	BeforeEach(func() {
		composer = prompt.NewComposer(prompt.Config{})
		core = prompt.PersonaCore{Name: "Ada", Core: "You are Ada Lovelace."}
	})

	It("renders sections in a fixed order", func() {
		out := composer.Compose(core, &memory.Payload{
			Biography:   []memory.Entry{{Content: "born 1815"}},
			Canonical:   []memory.Entry{{Content: "wrote the first program"}},
			ClientFacts: []memory.Fact{{Key: "name", Value: "Charles"}},
			Working:     []memory.Entry{{Content: "discussing engines"}},
			History:     []memory.Turn{{Role: "user", Content: "hello"}},
		}, "what is a loop?", 0)

		order := []string{
			"# Persona: Ada",
			"You are Ada Lovelace.",
			"## Biography",
			"- born 1815",
			"## Canonical identity",
			"- wrote the first program",
			"## Client facts",
			"- name: Charles",
			"## Working memory",
			"- discussing engines",
			"## Session history",
			"user: hello",
			"## New message",
			"what is a loop?",
		}
		last := -1
		for _, s := range order {
			idx := strings.Index(out, s)
			Expect(idx).To(BeNumerically(">", last), "expected %q after previous section", s)
			last = idx
		}
	})

	It("is deterministic", func() {
		p := &memory.Payload{Working: entries("working", 3)}
		Expect(composer.Compose(core, p, "hi", 0)).To(Equal(composer.Compose(core, p, "hi", 0)))
	})

	It("renders empty layers with a marker", func() {
		out := composer.Compose(core, &memory.Payload{}, "hi", 0)
		Expect(strings.Count(out, "(none)")).To(Equal(5))
		Expect(out).To(ContainSubstring("## Working memory\n(none)\n"))
	})

	It("does not panic on a nil payload", func() {
		Expect(func() {
			out := composer.Compose(prompt.PersonaCore{}, nil, "hi", 10)
			Expect(out).To(ContainSubstring("hi"))
		}).NotTo(Panic())
	})

	Describe("truncation", func() {
		var canonical []memory.Entry

		BeforeEach(func() {
			canonical = entries("canonical", 3)
		})

		It("truncates an oversized working memory before canonical memory", func() {
			base := composer.Estimate(composer.Compose(core, &memory.Payload{Canonical: canonical}, "hello", 0))
			budget := base + 20

			out := composer.Compose(core, &memory.Payload{
				Canonical: canonical,
				Working:   entries("working", 50),
			}, "hello", budget)

			Expect(composer.Estimate(out)).To(BeNumerically("<=", budget))
			for _, e := range canonical {
				Expect(out).To(ContainSubstring("- " + e.Content + "\n"))
			}
			Expect(out).To(ContainSubstring("- working note number 49\n"))
			Expect(out).NotTo(ContainSubstring("- working note number 0\n"))
		})

		It("truncates history before working memory", func() {
			history := make([]memory.Turn, 0, 30)
			for i := range 30 {
				history = append(history, memory.Turn{Role: "user", Content: fmt.Sprintf("history message %d", i)})
			}
			working := entries("working", 2)

			base := composer.Estimate(composer.Compose(core, &memory.Payload{Working: working}, "hello", 0))
			out := composer.Compose(core, &memory.Payload{Working: working, History: history}, "hello", base)

			Expect(out).To(ContainSubstring("- working note number 0\n"))
			Expect(out).To(ContainSubstring("- working note number 1\n"))
			Expect(out).To(ContainSubstring("## Session history\n(none)\n"))
		})

		It("drops oldest entries first", func() {
			base := composer.Estimate(composer.Compose(core, &memory.Payload{}, "hello", 0))
			out := composer.Compose(core, &memory.Payload{Working: entries("working", 10)}, "hello", base+15)

			Expect(out).To(ContainSubstring("- working note number 9\n"))
			Expect(out).NotTo(ContainSubstring("- working note number 0\n"))
		})

		It("never truncates the new message or the persona core", func() {
			message := strings.Repeat("word ", 200)

			out := composer.Compose(core, &memory.Payload{
				Biography: entries("bio", 5),
				Canonical: canonical,
				Working:   entries("working", 5),
			}, message, 10)

			Expect(out).To(ContainSubstring(message))
			Expect(out).To(ContainSubstring("You are Ada Lovelace."))
			Expect(strings.Count(out, "(none)")).To(Equal(5))
		})

		It("leaves the prompt alone when it fits", func() {
			p := &memory.Payload{Working: entries("working", 3)}
			Expect(composer.Compose(core, p, "hi", 10_000)).To(Equal(composer.Compose(core, p, "hi", 0)))
		})
	})

	It("builds a core from a persona", func() {
		Expect(prompt.CoreOf(&memory.Persona{Name: "Ada", Core: "x"})).To(Equal(prompt.PersonaCore{Name: "Ada", Core: "x"}))
		Expect(prompt.CoreOf(nil)).To(Equal(prompt.PersonaCore{}))
	})
})
