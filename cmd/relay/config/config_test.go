package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/relay/cmd/relay/config"
	"github.com/papercomputeco/relay/pkg/dotdir"
)

var _ = Describe("config", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.PersistentFlags().String("config-dir", "", "")
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), ".relay")
		GinkgoT().Setenv(dotdir.EnvDir, dir)
		out = &bytes.Buffer{}
	})

	It("has set, get and list subcommands", func() {
		names := []string{}
		for _, sub := range configcmder.NewConfigCmd().Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list"))
	})

	Describe("set", func() {
		It("writes the value to config.toml", func() {
			Expect(run("set", "memory.provider", "sqlite")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`provider = "sqlite"`))
		})

		It("shows the previous value", func() {
			Expect(run("set", "circuit.threshold", "7")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("3"))
			Expect(out.String()).To(ContainSubstring("→"))
			Expect(out.String()).To(ContainSubstring("7"))
		})

		It("honors --config-dir over RELAY_DIR", func() {
			other := GinkgoT().TempDir()
			Expect(run("set", "fallback.text", "brb", "--config-dir", other)).To(Succeed())
			Expect(filepath.Join(other, "config.toml")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "config.toml")).NotTo(BeAnExistingFile())
		})

		DescribeTable("rejects bad input",
			func(args ...string) {
				Expect(run(append([]string{"set"}, args...)...)).NotTo(Succeed())
				Expect(filepath.Join(dir, "config.toml")).NotTo(BeAnExistingFile())
			},
			Entry("unknown key", "invalid_key", "value"),
			Entry("missing value", "memory.provider"),
			Entry("no arguments"),
			Entry("bad integer", "sessions.max_concurrent", "not-a-number"),
			Entry("bad duration", "circuit.cooldown", "soon"),
		)
	})

	Describe("get", func() {
		It("reads a value that was set", func() {
			Expect(run("set", "circuit.threshold", "5")).To(Succeed())

			out.Reset()
			Expect(run("get", "circuit.threshold")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Config file:"))
			Expect(out.String()).To(ContainSubstring("5"))
		})

		It("reports defaults without a config file", func() {
			Expect(run("get", "relay.listen")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No config file found"))
			Expect(out.String()).To(ContainSubstring(":8080"))
		})

		It("reads several keys at once", func() {
			Expect(run("get", "relay.listen", "api.listen")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(":8080"))
			Expect(out.String()).To(ContainSubstring(":8081"))
		})

		It("marks empty values", func() {
			Expect(run("get", "memory.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys and missing arguments", func() {
			Expect(run("get", "relay.listen", "invalid_key")).To(MatchError(ContainSubstring(`unknown config key: "invalid_key"`)))
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list", func() {
		It("lists every key and the default cascade", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("memory.provider"))
			Expect(out.String()).To(ContainSubstring("fallback.text"))
			Expect(out.String()).To(ContainSubstring("provider=ollama"))
			Expect(out.String()).NotTo(ContainSubstring("quotas:"))
		})

		It("shows values that were set", func() {
			Expect(run("set", "eventstream.kafka_topic", "relay.audit")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"relay.audit"`))
		})

		It("orders backends by priority and shows quota overrides", func() {
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[[backends]]
name = "late"
provider = "ollama"
priority = 20

[[backends]]
name = "early"
provider = "ollama"
priority = 1

[quotas."maximal.large"]
canonical = 40
`), 0o600)).To(Succeed())

			Expect(run("list")).To(Succeed())
			s := out.String()
			Expect(s).To(MatchRegexp(`(?s)early.*late`))
			Expect(s).To(ContainSubstring("quotas:"))
			Expect(s).To(ContainSubstring("maximal.large"))
			Expect(s).To(ContainSubstring("Canonical:40"))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
