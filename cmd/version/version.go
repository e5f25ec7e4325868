// Package versioncmder provides the version command.
package versioncmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/relay/pkg/utils"
)

type VersionCommander struct {
	json bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the relay version",
		Long:  "Print the version, commit and build details of this relay binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print build details as JSON")

	return cmd
}

func (c *VersionCommander) run(out io.Writer) error {
	info := utils.Build()

	if c.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "Version:  %s\nSha:      %s\nBuilt at: %s\nGo:       %s\nPlatform: %s\n",
		info.Version, info.Sha, info.Buildtime, info.GoVersion, info.Platform)
	return nil
}
