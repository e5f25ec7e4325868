package configcmder

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/config"
)

const listLongDesc string = `List all configuration values.

Prints every key with its value from config.toml in the .relay/ directory,
then the backend cascade in dispatch order and any memory quota overrides.

Examples:
  relay config list`

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration values",
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfger, err := openConfig(cmd)
			if err != nil {
				return err
			}
			cfg, err := cfger.LoadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printTarget(out, cfger)

			keys := config.ValidConfigKeys()
			width := 0
			for _, k := range keys {
				width = max(width, len(k))
			}
			for _, key := range keys {
				value, err := cfger.GetConfigValue(key)
				if err != nil {
					return err
				}
				if value == "" {
					fmt.Fprintf(out, "%-*s = <not set>\n", width, key)
				} else {
					fmt.Fprintf(out, "%-*s = %q\n", width, key, value)
				}
			}

			backends := append([]config.BackendConfig(nil), cfg.Backends...)
			sort.SliceStable(backends, func(i, j int) bool { return backends[i].Priority < backends[j].Priority })

			fmt.Fprint(out, "\nbackends:\n")
			for _, b := range backends {
				fmt.Fprintf(out, "  %-12s provider=%s priority=%d capability=%s mode=%s\n",
					b.Name, b.Provider, b.Priority, b.Capability, b.PreferredMode)
			}

			if len(cfg.Quotas) > 0 {
				names := make([]string, 0, len(cfg.Quotas))
				for name := range cfg.Quotas {
					names = append(names, name)
				}
				sort.Strings(names)

				fmt.Fprint(out, "\nquotas:\n")
				for _, name := range names {
					fmt.Fprintf(out, "  %-16s %+v\n", name, cfg.Quotas[name])
				}
			}
			return nil
		},
	}
}
