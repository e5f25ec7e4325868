package servecmder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/credentials"
	"github.com/papercomputeco/relay/pkg/eventstream/nop"
	"github.com/papercomputeco/relay/pkg/eventstream/zaplog"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
	"github.com/papercomputeco/relay/pkg/memory/cached"
	"github.com/papercomputeco/relay/pkg/memory/local"
	"github.com/papercomputeco/relay/pkg/memory/sqlite"
)

var _ = Describe("NewStore", func() {
	var (
		ctx context.Context
		cfg *config.Config
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		dir = GinkgoT().TempDir()
	})

	It("defaults to the in-memory store", func() {
		store, err := NewStore(ctx, cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
		Expect(store).To(BeAssignableToTypeOf(&local.Store{}))
	})

	It("places the sqlite database in the config dir when no path is set", func() {
		cfg.Memory.Provider = config.MemoryProviderSQLite

		store, err := NewStore(ctx, cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		Expect(store).To(BeAssignableToTypeOf(&sqlite.Store{}))
		Expect(filepath.Join(dir, "relay.db")).To(BeAnExistingFile())
	})

	It("uses an explicit sqlite path", func() {
		path := filepath.Join(dir, "elsewhere.db")
		cfg.Memory.Provider = config.MemoryProviderSQLite
		cfg.Memory.SQLitePath = path

		store, err := NewStore(ctx, cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		Expect(path).To(BeAnExistingFile())
	})

	It("wraps the store in a read cache when enabled", func() {
		cfg.Memory.Cache = true

		store, err := NewStore(ctx, cfg, dir, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
		Expect(store).To(BeAssignableToTypeOf(&cached.Store{}))

		Expect(store.WritePersona(ctx, &memory.Persona{ID: "p1", Name: "Ada"})).To(Succeed())
		p, err := store.ReadPersona(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Ada"))
	})

	It("rejects unknown providers", func() {
		cfg.Memory.Provider = "etcd"

		_, err := NewStore(ctx, cfg, dir, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown memory provider")))
	})
})

var _ = Describe("NewDescriptors", func() {
	var creds *credentials.Manager

	BeforeEach(func() {
		var err error
		creds, err = credentials.NewManager(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	It("maps backend tables onto descriptors", func() {
		cfg := config.NewDefaultConfig()
		cfg.Backends = []config.BackendConfig{
			{
				Name:          "primary",
				Provider:      "openai",
				Model:         "gpt-4o-mini",
				APIKey:        "sk-test",
				Priority:      0,
				Timeout:       "20s",
				ProbeTimeout:  "1s",
				Capability:    "large",
				PreferredMode: "maximal",
				TokenBudget:   16000,
			},
			{
				Name:          "local",
				Provider:      "ollama",
				URL:           "http://localhost:11434",
				Model:         "llama3",
				Priority:      10,
				Timeout:       "45s",
				Capability:    "small",
				PreferredMode: "minimal",
				TokenBudget:   2048,
			},
		}

		descriptors, err := NewDescriptors(context.Background(), cfg, creds, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(descriptors).To(HaveLen(2))

		Expect(descriptors[0].Backend.Name()).To(Equal("primary"))
		Expect(descriptors[0].Timeout).To(Equal(20 * time.Second))
		Expect(descriptors[0].ProbeTimeout).To(Equal(time.Second))
		Expect(descriptors[0].Capability).To(Equal(memory.CapabilityLarge))
		Expect(descriptors[0].PreferredMode).To(Equal(memory.ModeMaximal))
		Expect(descriptors[0].TokenBudget).To(Equal(16000))

		Expect(descriptors[1].Backend.Name()).To(Equal("local"))
		Expect(descriptors[1].Priority).To(Equal(10))
		Expect(descriptors[1].Capability).To(Equal(memory.CapabilitySmall))
		Expect(descriptors[1].PreferredMode).To(Equal(memory.ModeMinimal))
	})

	It("reports the failing backend by name", func() {
		cfg := config.NewDefaultConfig()
		cfg.Backends = []config.BackendConfig{
			{Name: "broken", Provider: "ollama", Capability: "huge"},
		}

		_, err := NewDescriptors(context.Background(), cfg, creds, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("broken")))
	})
})

var _ = Describe("NewPublisher", func() {
	It("returns a no-op publisher when every sink is off", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.Log = false

		p, err := NewPublisher(cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("logs events by default", func() {
		p, err := NewPublisher(config.NewDefaultConfig(), logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&zaplog.Publisher{}))
	})

	It("fans out to kafka and the log together", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventStream.KafkaBrokers = []string{"localhost:9092"}

		p, err := NewPublisher(cfg, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(p.Close)
		Expect(p).NotTo(BeAssignableToTypeOf(&zaplog.Publisher{}))
	})
})

var _ = Describe("NewEventSource", func() {
	It("names the service and host", func() {
		host, _ := os.Hostname()
		Expect(NewEventSource()).To(HaveField("Service", "relay"))
		Expect(NewEventSource()).To(HaveField("Instance", host))
	})
})

var _ = Describe("newLogger", func() {
	It("appends JSON entries to the log file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "relay.log")

		l, closeLog, err := newLogger(true, false, path)
		Expect(err).NotTo(HaveOccurred())
		l.Debug("to the file")
		closeLog()

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"to the file"`))
		Expect(string(data)).To(ContainSubstring(`"level":"debug"`))
	})

	It("fails on an unwritable path", func() {
		_, _, err := newLogger(false, false, filepath.Join(GinkgoT().TempDir(), "missing", "relay.log"))
		Expect(err).To(MatchError(ContainSubstring("opening log file")))
	})
})
