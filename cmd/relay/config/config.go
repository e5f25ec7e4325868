// Package configcmder provides the config command for managing persistent
// relay configuration stored in the .relay/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
)

const configLongDesc string = `Manage persistent relay configuration.

Configuration is stored as config.toml in the .relay/ directory and provides
default values for the serve command. RELAY_* environment variables and CLI
flags always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  relay.listen, relay.request_timeout, relay.shutdown_timeout,
  api.listen, api.disable_mcp,
  client.relay_target, client.api_target,
  sessions.idle_timeout, sessions.max_concurrent, sessions.queue_size,
  circuit.threshold, circuit.cooldown,
  memory.provider, memory.sqlite_path, memory.postgres_dsn, memory.cache,
  memory.cache_entries, memory.working_capacity, memory.history_capacity,
  prompt.words_to_tokens,
  eventstream.log, eventstream.kafka_brokers, eventstream.kafka_topic,
  eventstream.workers, eventstream.queue_size,
  fallback.text

Backends are configured with [[backends]] tables and memory quotas with
[quotas."mode.capability"] tables; edit config.toml directly for those.

Use subcommands to get, set, or list configuration values:
  relay config set <key> <value>    Set a configuration value
  relay config get <key>...         Get one or more configuration values
  relay config list                 List all configuration values

Examples:
  relay config set memory.provider sqlite
  relay config set circuit.cooldown 1m
  relay config get relay.listen api.listen
  relay config list`

const configShortDesc string = "Manage persistent relay configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// openConfig validates keys and resolves config.toml for cmd's --config-dir.
func openConfig(cmd *cobra.Command, keys ...string) (*config.Configer, error) {
	for _, key := range keys {
		if !config.IsValidConfigKey(key) {
			return nil, fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
				key, strings.Join(config.ValidConfigKeys(), ", "))
		}
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfger, nil
}

// completeKeys completes config keys for the first n positional arguments.
func completeKeys(n int) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if n < 0 || len(args) < n {
			return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func printTarget(out io.Writer, cfger *config.Configer) {
	if cfger.Exists() {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(cfger.GetTarget()),
		)
		return
	}
	fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}

func renderValue(value string) string {
	if value == "" {
		return cliui.DimStyle.Render("<not set>")
	}
	return cliui.ValueStyle.Render(value)
}
