// Package cli defines the urlappender command line.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command. Running it without a subcommand
// starts the HTTP server.
func NewRootCommand() *cobra.Command {
	serve := NewServeCommand()

	cmd := &cobra.Command{
		Use:   "urlappender",
		Short: "Append query parameters to stored links",
		Long: `urlappender stores links in PostgreSQL, caches them in Redis and
serves a paginated listing that spans both tiers.

Configuration is read from the environment; see internal/config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand())

	return cmd
}
