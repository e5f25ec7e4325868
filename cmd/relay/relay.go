// Package relaycmder
package relaycmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/relay/cmd/relay/ask"
	authcmder "github.com/papercomputeco/relay/cmd/relay/auth"
	configcmder "github.com/papercomputeco/relay/cmd/relay/config"
	initcmder "github.com/papercomputeco/relay/cmd/relay/init"
	seedcmder "github.com/papercomputeco/relay/cmd/relay/seed"
	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
	statuscmder "github.com/papercomputeco/relay/cmd/relay/status"
	versioncmder "github.com/papercomputeco/relay/cmd/version"
)

const relayLongDesc string = `Relay routes persona conversations to LLM backends.

Each request is queued on its session, composed with the persona's layered
memory, and sent down a cascade of backends guarded by circuit breakers.
Memory directives in the reply are applied and stripped before it is
returned.

Get started:
  relay init                     Create a local .relay/ directory
  relay seed --file personas.toml
  relay serve                    Run the relay and API servers
  relay ask -p aria -c me "Hi"   Talk to a persona
  relay status                   Show backend circuits and sessions`

const relayShortDesc string = "Relay - persona request dispatch"

func NewRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         relayShortDesc,
		Long:          relayLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .relay/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
