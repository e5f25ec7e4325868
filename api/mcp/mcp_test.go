package mcp_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/api/mcp"
	"github.com/papercomputeco/relay/pkg/circuit"
	relaylogger "github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
	testutils "github.com/papercomputeco/relay/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		router   *memory.Router
		registry *circuit.Registry
	)

	BeforeEach(func() {
		var err error
		router, err = memory.NewRouter(memory.RouterConfig{Store: testutils.NewMockStore()})
		Expect(err).NotTo(HaveOccurred())
		registry = circuit.NewRegistry(circuit.Config{})
	})

	Describe("NewServer", func() {
		It("returns an error when the router is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Registry: registry,
				Logger:   relaylogger.Nop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("memory router is required"))
		})

		It("returns an error when the registry is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Router: router,
				Logger: relaylogger.Nop(),
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("circuit registry is required"))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{
				Router:   router,
				Registry: registry,
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("logger is required"))
		})

		It("creates a server with valid config", func() {
			server, err := mcp.NewServer(mcp.Config{
				Router:   router,
				Registry: registry,
				Logger:   relaylogger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})

		It("creates an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})
})
