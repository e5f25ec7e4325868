// Package seedcmder provides the seed command that loads persona profiles
// and their persona-wide memory into the configured memory store.
package seedcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	servecmder "github.com/papercomputeco/relay/cmd/relay/serve"
	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/pkg/memory"
)

const seedLongDesc string = `Seed personas into the memory store.

Reads a TOML file of [[personas]] tables and writes each persona profile,
its biography and its canonical facts into the store selected by
memory.provider. Re-seeding replaces profiles and biographies; canonical
facts are append-only, so only facts not already stored are added.

  [[personas]]
  id = "aria"
  name = "Aria"
  core = "A patient tutor who explains with small examples."
  default_mode = "standard"
  biography = ["Grew up in a lighthouse.", "Studied mathematics."]
  canonical = ["Aria never shares private keys."]

Examples:
  relay seed --file personas.toml
  relay seed --file personas.toml --memory sqlite --sqlite ./relay.db`

const seedShortDesc string = "Seed personas into the memory store"

type seedCommander struct {
	configDir      string
	file           string
	memoryProvider string
	sqlitePath     string
	postgresDSN    string

	viper *viper.Viper
}

// PersonaFile is the layout of a seed file.
type PersonaFile struct {
	Personas []SeedPersona `toml:"personas"`
}

type SeedPersona struct {
	memory.Persona
	Biography []string `toml:"biography"`
	Canonical []string `toml:"canonical"`
}

var seedFlags = []string{
	config.FlagMemoryProvider,
	config.FlagSQLite,
	config.FlagPostgresDSN,
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(cmder.viper, cmd, config.Flags, seedFlags)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Path to a personas TOML file")
	_ = cmd.MarkFlagRequired("file")
	config.AddStringFlag(cmd, config.Flags, config.FlagMemoryProvider, &cmder.memoryProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)

	return cmd
}

func (c *seedCommander) run(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	seed, err := LoadPersonaFile(c.file)
	if err != nil {
		return err
	}

	cfg, dir, err := config.Load(c.configDir, c.viper)
	if err != nil {
		return err
	}

	store, err := servecmder.NewStore(ctx, cfg, dir, logger.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	var entries int
	if err := cliui.Step(out, "Seeding personas", func() error {
		var seedErr error
		entries, seedErr = Seed(ctx, store, seed)
		return seedErr
	}); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Seeded %s personas %s into the %s store\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(len(seed.Personas))),
		cliui.DimStyle.Render(fmt.Sprintf("(%d memory entries)", entries)),
		cliui.DimStyle.Render(cfg.Memory.Provider),
	)
	return nil
}

// LoadPersonaFile decodes and checks a seed file.
func LoadPersonaFile(path string) (*PersonaFile, error) {
	var seed PersonaFile
	if _, err := toml.DecodeFile(path, &seed); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if len(seed.Personas) == 0 {
		return nil, fmt.Errorf("%s defines no [[personas]]", path)
	}

	var errs []error
	seen := make(map[string]bool, len(seed.Personas))
	for i, p := range seed.Personas {
		switch {
		case p.ID == "":
			errs = append(errs, fmt.Errorf("personas[%d]: id is required", i))
		case seen[p.ID]:
			errs = append(errs, fmt.Errorf("personas[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true

		if p.DefaultMode != "" {
			if _, err := memory.ParseMode(string(p.DefaultMode)); err != nil {
				errs = append(errs, fmt.Errorf("personas[%d]: %w", i, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &seed, nil
}

// Seed writes every persona in seed into store and returns the number of
// memory entries written.
func Seed(ctx context.Context, store memory.Store, seed *PersonaFile) (int, error) {
	var written int

	for _, p := range seed.Personas {
		persona := p.Persona
		if err := store.WritePersona(ctx, &persona); err != nil {
			return written, fmt.Errorf("writing persona %s: %w", p.ID, err)
		}

		bio := make([]memory.Entry, 0, len(p.Biography))
		for i, content := range p.Biography {
			bio = append(bio, memory.Entry{
				ID:      fmt.Sprintf("%s-bio-%d", p.ID, i),
				Content: content,
			})
		}
		if err := store.ReplaceLayer(ctx, p.ID, "", memory.LayerBiography, bio); err != nil {
			return written, fmt.Errorf("writing %s biography: %w", p.ID, err)
		}
		written += len(bio)

		existing, err := store.ReadLayer(ctx, p.ID, "", memory.LayerCanonical)
		if err != nil {
			return written, fmt.Errorf("reading %s canonical facts: %w", p.ID, err)
		}
		stored := make([]string, 0, len(existing))
		for _, e := range existing {
			stored = append(stored, e.Content)
		}

		for i, content := range p.Canonical {
			if slices.Contains(stored, content) {
				continue
			}
			entry := memory.Entry{
				ID:      fmt.Sprintf("%s-canon-%d", p.ID, len(existing)+i),
				Content: content,
			}
			if err := store.AppendEntry(ctx, p.ID, "", memory.LayerCanonical, entry); err != nil {
				return written, fmt.Errorf("writing %s canonical fact: %w", p.ID, err)
			}
			stored = append(stored, content)
			written++
		}
	}

	return written, nil
}
