package authcmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/relay/cmd/relay/auth"
	"github.com/papercomputeco/relay/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	newCmd := func(args ...string) *cobra.Command {
		cmd := authcmder.NewAuthCmd()
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.PersistentFlags().String("config-dir", "", "Override path to .relay/ config directory")
		cmd.SetArgs(args)
		return cmd
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth [provider]"))
			Expect(cmd.Short).NotTo(BeEmpty())
			Expect(cmd.Flags().Lookup("list")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("remove")).NotTo(BeNil())
		})
	})

	Describe("storing a key", func() {
		It("reads the key from piped input", func() {
			cmd := newCmd("gemini", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("gm-test\n"))
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Stored"))

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.GetKey("gemini")).To(Equal("gm-test"))
		})

		It("warns about keys that do not look like the provider's", func() {
			cmd := newCmd("anthropic", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("sk-proj-123\n"))
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`anthropic keys usually start with "sk-ant-"`))
			Expect(out.String()).To(ContainSubstring("Stored"))
		})

		It("stays quiet for well-formed keys", func() {
			cmd := newCmd("OpenAI", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("sk-proj-123\n"))
			Expect(cmd.Execute()).To(Succeed())
			Expect(out.String()).NotTo(ContainSubstring("usually start with"))

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.GetKey("openai")).To(Equal("sk-proj-123"))
		})

		It("rejects an empty key", func() {
			cmd := newCmd("openai", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("   \n"))
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("cannot be empty")))
		})

		It("reports missing input", func() {
			cmd := newCmd("openai", "--config-dir", tmpDir)
			cmd.SetIn(&bytes.Buffer{})
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("no input received")))
		})
	})

	Describe("--list flag", func() {
		BeforeEach(func() {
			for _, p := range credentials.SupportedProviders() {
				GinkgoT().Setenv(credentials.EnvVarForProvider(p), "")
			}
		})

		It("shows no credentials when none are set", func() {
			Expect(newCmd("--list", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No credentials found"))
		})

		It("lists stored credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			Expect(newCmd("--list", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("openai"))
			Expect(out.String()).To(ContainSubstring("stored, OPENAI_API_KEY overrides when set"))
			Expect(out.String()).To(ContainSubstring("not set"))
		})

		It("reports keys taken from the environment", func() {
			GinkgoT().Setenv("GEMINI_API_KEY", "env-key")

			Expect(newCmd("--list", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("from GEMINI_API_KEY"))
		})
	})

	Describe("--remove flag", func() {
		It("removes stored credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetKey("openai", "sk-test")).To(Succeed())

			Expect(newCmd("--remove", "openai", "--config-dir", tmpDir).Execute()).To(Succeed())

			key, err := mgr.GetKey("openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
			Expect(out.String()).To(ContainSubstring("Removed"))
		})

		It("says so when nothing was stored", func() {
			Expect(newCmd("--remove", "gemini", "--config-dir", tmpDir).Execute()).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No stored gemini credentials"))
		})
	})

	Describe("provider argument validation", func() {
		It("returns error when no provider given", func() {
			err := newCmd("--config-dir", tmpDir).Execute()
			Expect(err).To(MatchError(ContainSubstring("provider argument required")))
		})

		It("returns error for unsupported provider", func() {
			cmd := newCmd("ollama", "--config-dir", tmpDir)
			cmd.SetIn(bytes.NewBufferString("sk-test\n"))
			Expect(cmd.Execute()).To(MatchError(ContainSubstring("unsupported provider")))
		})
	})

	Describe("shell completion", func() {
		It("provides provider name completions", func() {
			cmd := authcmder.NewAuthCmd()
			completions, directive := cmd.ValidArgsFunction(cmd, []string{}, "")
			Expect(completions).To(ConsistOf("openai", "anthropic", "gemini"))
			Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
		})

		It("provides no completions after first arg", func() {
			cmd := authcmder.NewAuthCmd()
			completions, directive := cmd.ValidArgsFunction(cmd, []string{"openai"}, "")
			Expect(completions).To(BeNil())
			Expect(directive).To(Equal(cobra.ShellCompDirectiveNoFileComp))
		})
	})
})
