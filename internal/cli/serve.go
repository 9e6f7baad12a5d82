package cli

import (
	"github.com/spf13/cobra"

	"github.com/sundayezeilo/urlappender/internal/app"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server until SIGINT or SIGTERM.

Pending schema migrations are applied first unless DB_AUTO_MIGRATE=false.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			application, err := app.New(ctx)
			if err != nil {
				return err
			}
			defer application.Shutdown()

			// Blocks until shutdown
			return application.Start(ctx)
		},
	}
}
