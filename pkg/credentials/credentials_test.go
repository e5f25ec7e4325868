package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		dir string
		mgr *credentials.Manager
	)

	writeFile := func(data string) {
		Expect(os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(data), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		var err error
		mgr, err = credentials.NewManager(dir)
		Expect(err).NotTo(HaveOccurred())
	})

	It("targets credentials.toml in the relay directory", func() {
		Expect(mgr.GetTarget()).To(Equal(filepath.Join(dir, "credentials.toml")))
	})

	Describe("Load", func() {
		It("starts empty without a file", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(BeEmpty())
		})

		It("reads provider keys", func() {
			writeFile("version = 0\n\n[providers.gemini]\napi_key = \"g-key\"\n")

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).To(HaveKeyWithValue("gemini", credentials.ProviderCredential{APIKey: "g-key"}))
		})

		It("initialises providers for a file without any", func() {
			writeFile("version = 0\n")

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Providers).NotTo(BeNil())
		})

		It("rejects an unknown file version", func() {
			writeFile("version = 7\n")

			_, err := mgr.Load()
			Expect(err).To(MatchError(ContainSubstring("unsupported credentials version 7")))
		})

		It("rejects malformed TOML", func() {
			writeFile("not valid [[[")

			creds, err := mgr.Load()
			Expect(err).To(MatchError(ContainSubstring("parsing credentials")))
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("writes owner-only permissions", func() {
			Expect(mgr.SetKey("openai", "sk-1")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("replaces the file without leaving temporaries", func() {
			Expect(mgr.SetKey("openai", "sk-1")).To(Succeed())
			Expect(mgr.SetKey("openai", "sk-2")).To(Succeed())

			entries, err := os.ReadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(mgr.GetKey("openai")).To(Equal("sk-2"))
		})

		It("refuses nil credentials", func() {
			Expect(mgr.Save(nil)).To(MatchError("cannot save nil credentials"))
		})
	})

	Describe("keys", func() {
		It("stores keys per provider", func() {
			Expect(mgr.SetKey("openai", "sk-o")).To(Succeed())
			Expect(mgr.SetKey("anthropic", "sk-a")).To(Succeed())

			Expect(mgr.GetKey("openai")).To(Equal("sk-o"))
			Expect(mgr.GetKey("anthropic")).To(Equal("sk-a"))
			Expect(mgr.GetKey("gemini")).To(BeEmpty())
		})

		It("lists providers in order", func() {
			for _, p := range []string{"openai", "gemini", "anthropic"} {
				Expect(mgr.SetKey(p, "k")).To(Succeed())
			}
			Expect(mgr.ListProviders()).To(Equal([]string{"anthropic", "gemini", "openai"}))
		})

		It("removes one provider and keeps the rest", func() {
			Expect(mgr.SetKey("openai", "sk-o")).To(Succeed())
			Expect(mgr.SetKey("gemini", "g")).To(Succeed())

			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mgr.RemoveKey("openai")).To(Succeed())
			Expect(mgr.ListProviders()).To(Equal([]string{"gemini"}))
		})
	})

	Describe("Resolve", func() {
		BeforeEach(func() {
			Expect(mgr.SetKey("anthropic", "stored-key")).To(Succeed())
			GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
		})

		It("prefers an explicit key", func() {
			GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
			Expect(mgr.Resolve("anthropic", "explicit-key")).To(Equal(credentials.Key{
				Value: "explicit-key", Source: credentials.SourceConfig,
			}))
		})

		It("uses the environment before the stored key", func() {
			GinkgoT().Setenv("ANTHROPIC_API_KEY", "env-key")
			Expect(mgr.Resolve("anthropic", "")).To(Equal(credentials.Key{
				Value: "env-key", Source: credentials.SourceEnv,
			}))
		})

		It("falls back to the stored key", func() {
			Expect(mgr.Resolve("anthropic", "")).To(Equal(credentials.Key{
				Value: "stored-key", Source: credentials.SourceStored,
			}))
		})

		It("returns an empty key for providers without one", func() {
			Expect(mgr.Resolve("ollama", "")).To(Equal(credentials.Key{}))
		})
	})
})

var _ = DescribeTable("EnvVarForProvider",
	func(provider, env string) {
		Expect(credentials.EnvVarForProvider(provider)).To(Equal(env))
	},
	Entry("openai", "openai", "OPENAI_API_KEY"),
	Entry("anthropic", "anthropic", "ANTHROPIC_API_KEY"),
	Entry("gemini", "gemini", "GEMINI_API_KEY"),
	Entry("keyless ollama", "ollama", ""),
)

var _ = Describe("IsSupportedProvider", func() {
	It("accepts every provider that takes a key", func() {
		for _, p := range credentials.SupportedProviders() {
			Expect(credentials.IsSupportedProvider(p)).To(BeTrue(), p)
		}
	})

	It("rejects the rest", func() {
		Expect(credentials.IsSupportedProvider("ollama")).To(BeFalse())
		Expect(credentials.IsSupportedProvider("")).To(BeFalse())
	})
})
