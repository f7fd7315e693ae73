// Package cli wires configuration, storage, the extractor and the HTTP API
// into the pricewatch commands.
package cli

import (
	"github.com/spf13/cobra"
)

const serviceName = "pricewatch"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   serviceName,
		Short: "Catalog price tracker",
		Long: `pricewatch periodically scrapes a product catalog for item names and
prices, stores new observations and serves them over a JSON HTTP API.

Settings come from defaults, an optional YAML file (--config) and
environment variables, later sources winning.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewScrapeCommand(opts))

	return cmd
}
