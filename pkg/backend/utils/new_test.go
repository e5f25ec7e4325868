package backendutils_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/backend"
	backendutils "github.com/papercomputeco/relay/pkg/backend/utils"
)

var _ = Describe("NewBackend", func() {
	ctx := context.Background()

	DescribeTable("creates each supported provider",
		func(provider, name string) {
			b, err := backendutils.NewBackend(ctx, &backendutils.NewBackendOpts{
				ProviderType: provider,
				Name:         name,
				APIKey:       "key",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Name()).To(Equal(name))
		},
		Entry("ollama", backend.ProviderOllama, "local-llama"),
		Entry("openai", backend.ProviderOpenAI, "gpt"),
		Entry("anthropic", backend.ProviderAnthropic, "claude"),
		Entry("gemini", backend.ProviderGemini, "gemini-flash"),
	)

	It("creates the fallback under its fixed name", func() {
		b, err := backendutils.NewBackend(ctx, &backendutils.NewBackendOpts{ProviderType: backend.ProviderFallback})
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Name()).To(Equal("fallback"))
	})

	It("rejects unknown providers", func() {
		_, err := backendutils.NewBackend(ctx, &backendutils.NewBackendOpts{ProviderType: "bogus"})
		Expect(err).To(MatchError(ContainSubstring("unknown backend provider")))
	})

	It("requires keys for hosted SDK providers", func() {
		_, err := backendutils.NewBackend(ctx, &backendutils.NewBackendOpts{ProviderType: backend.ProviderAnthropic})
		Expect(err).To(HaveOccurred())
	})
})
