package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/cliui"
)

const setLongDesc string = `Set a configuration value.

Writes the key to config.toml in the .relay/ directory. The value is checked
against the key's type before anything is written.

Examples:
  relay config set memory.provider postgres
  relay config set memory.postgres_dsn postgres://relay@localhost/relay
  relay config set eventstream.kafka_brokers broker-1:9092,broker-2:9092
  relay config set sessions.max_concurrent 16`

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Set a configuration value",
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			cfger, err := openConfig(cmd, key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)

			previous, err := cfger.GetConfigValue(key)
			if err != nil {
				return err
			}
			if err := cfger.SetConfigValue(key, value); err != nil {
				return err
			}

			fmt.Fprintf(out, "  %s %s  %s %s %s\n\n",
				cliui.SuccessMark,
				cliui.KeyStyle.Render(key),
				renderValue(previous),
				cliui.DimStyle.Render("→"),
				cliui.ValueStyle.Render(value),
			)
			return nil
		},
	}
}
