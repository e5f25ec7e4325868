package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/dotdir"
)

var _ = Describe("Manager", func() {
	var (
		root  string
		local string
		m     *dotdir.Manager
	)

	BeforeEach(func() {
		var err error
		// EvalSymlinks keeps paths comparable with filepath.Abs on macOS,
		// where the temp dir sits behind /var -> /private/var.
		root, err = filepath.EvalSymlinks(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		local = filepath.Join(root, dotdir.DirName)

		orig, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(root)).To(Succeed())
		DeferCleanup(func() { _ = os.Chdir(orig) })

		GinkgoT().Setenv(dotdir.EnvDir, "")
		GinkgoT().Setenv("HOME", filepath.Join(root, "home"))

		m = dotdir.NewManager()
	})

	Describe("Target", func() {
		It("creates a missing override directory", func() {
			dir := filepath.Join(root, "new", "nested")
			Expect(m.Target(dir)).To(Equal(dir))
			Expect(dir).To(BeADirectory())
		})

		It("makes a relative override absolute", func() {
			Expect(m.Target("rel")).To(Equal(filepath.Join(root, "rel")))
		})

		It("creates ~/.relay when nothing else applies", func() {
			home := filepath.Join(root, "home", dotdir.DirName)
			Expect(m.Target("")).To(Equal(home))
			Expect(home).To(BeADirectory())
		})

		Context("with a local .relay directory", func() {
			BeforeEach(func() {
				Expect(os.Mkdir(local, 0o755)).To(Succeed())
			})

			It("uses it without an override", func() {
				Expect(m.Target("")).To(Equal(local))
			})

			It("loses to $RELAY_DIR", func() {
				env := filepath.Join(root, "from-env")
				GinkgoT().Setenv(dotdir.EnvDir, env)
				Expect(m.Target("")).To(Equal(env))
			})

			It("ignores a blank $RELAY_DIR", func() {
				GinkgoT().Setenv(dotdir.EnvDir, "  ")
				Expect(m.Target("")).To(Equal(local))
			})

			It("loses to the override", func() {
				override := filepath.Join(root, "override")
				Expect(m.Target(override)).To(Equal(override))
			})
		})

		It("prefers the override over $RELAY_DIR", func() {
			GinkgoT().Setenv(dotdir.EnvDir, filepath.Join(root, "from-env"))
			override := filepath.Join(root, "override")
			Expect(m.Target(override)).To(Equal(override))
		})

		It("ignores a local .relay file that is not a directory", func() {
			Expect(os.WriteFile(local, nil, 0o600)).To(Succeed())
			Expect(m.Target("")).To(Equal(filepath.Join(root, "home", dotdir.DirName)))
		})
	})

	Describe("File", func() {
		It("joins the name onto the resolved directory", func() {
			Expect(m.File(root, "config.toml")).To(Equal(filepath.Join(root, "config.toml")))
		})

		It("follows $RELAY_DIR", func() {
			env := filepath.Join(root, "from-env")
			GinkgoT().Setenv(dotdir.EnvDir, env)
			Expect(m.File("", "credentials.toml")).To(Equal(filepath.Join(env, "credentials.toml")))
		})
	})
})
