package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/cliui"
)

const getLongDesc string = `Get configuration values.

Prints the value of each key from config.toml in the .relay/ directory.
Keys absent from the file report their default.

Examples:
  relay config get memory.provider
  relay config get circuit.threshold circuit.cooldown`

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>...",
		Short:             "Get configuration values",
		Long:              getLongDesc,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeKeys(-1),
		RunE: func(cmd *cobra.Command, keys []string) error {
			cfger, err := openConfig(cmd, keys...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)

			width := 0
			for _, k := range keys {
				width = max(width, len(k))
			}
			for _, key := range keys {
				value, err := cfger.GetConfigValue(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "  %s  %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), renderValue(value))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
