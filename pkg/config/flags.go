package config

import (
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag once so every command that takes it registers the
// same name, shorthand and help text and binds it to the same config key.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Registry keys for Flags.
const (
	FlagRelayListen    = "relay-listen"
	FlagAPIListen      = "api-listen"
	FlagMemoryProvider = "memory"
	FlagSQLite         = "sqlite"
	FlagPostgresDSN    = "postgres-dsn"
	FlagMemoryCache    = "memory-cache"
	FlagKafkaBrokers   = "kafka-brokers"
	FlagKafkaTopic     = "kafka-topic"
	FlagDisableMCP     = "disable-mcp"
	FlagAPITarget      = "api-target"
	FlagRelayTarget    = "relay-target"
)

// Flags is the registry shared by every relay command.
var Flags = FlagSet{
	FlagRelayListen:    {Name: "relay-listen", Shorthand: "l", ViperKey: "relay.listen", Description: "Address for the relay server to listen on"},
	FlagAPIListen:      {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagMemoryProvider: {Name: "memory", Shorthand: "m", ViperKey: "memory.provider", Description: "Memory store provider (local, sqlite, postgres)"},
	FlagSQLite:         {Name: "sqlite", Shorthand: "s", ViperKey: "memory.sqlite_path", Description: "Path to the SQLite memory database"},
	FlagPostgresDSN:    {Name: "postgres-dsn", ViperKey: "memory.postgres_dsn", Description: "PostgreSQL connection string for the memory store"},
	FlagMemoryCache:    {Name: "memory-cache", ViperKey: "memory.cache", Description: "Cache memory store reads in process"},
	FlagKafkaBrokers:   {Name: "kafka-brokers", ViperKey: "eventstream.kafka_brokers", Description: "Comma separated Kafka brokers for execution events"},
	FlagKafkaTopic:     {Name: "kafka-topic", ViperKey: "eventstream.kafka_topic", Description: "Kafka topic for execution events"},
	FlagDisableMCP:     {Name: "disable-mcp", ViperKey: "api.disable_mcp", Description: "Do not mount the MCP endpoint on the API server"},
	FlagAPITarget:      {Name: "api-target", ViperKey: "client.api_target", Description: "Relay API server URL"},
	FlagRelayTarget:    {Name: "relay-target", ViperKey: "client.relay_target", Description: "Relay server URL"},
}

// AddStringFlag registers the string flag key on cmd. Its default is the
// built-in config value for the flag's viper key. Unknown keys are ignored.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	if def, ok := fs[key]; ok {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultString(def.ViperKey), def.Description)
	}
}

// AddBoolFlag registers the bool flag key on cmd.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	if def, ok := fs[key]; ok {
		defaultVal, _ := strconv.ParseBool(defaultString(def.ViperKey))
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds the flags named by keys, once registered on cmd,
// to their viper keys so a set flag outranks env, file and defaults. Call it
// from PreRunE after InitViper.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}

func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
