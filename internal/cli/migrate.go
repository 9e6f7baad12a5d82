package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sundayezeilo/urlappender/internal/app"
	"github.com/sundayezeilo/urlappender/internal/links/migrations"
)

// migrator is the subset of *migrations.Migrator the commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty, ok bool, err error)
	Close() error
}

// openMigrator connects to the configured database. Tests replace it.
var openMigrator = func() (migrator, *slog.Logger, error) {
	cfg, logger, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	mg, err := migrations.New(cfg.Database.URL(), logger)
	if err != nil {
		return nil, nil, err
	}
	return mg, logger, nil
}

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the link store schema",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "up",
		Short:         "Apply all pending migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(mg migrator) error {
				if err := mg.Up(); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), mg)
			})
		},
	})

	var confirm bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Long: `Roll back every migration, dropping the links table and all
stored links. Requires --yes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to drop the schema without --yes")
			}
			return withMigrator(func(mg migrator) error {
				if err := mg.Down(); err != nil {
					return err
				}
				return printVersion(cmd.OutOrStdout(), mg)
			})
		},
	}
	down.Flags().BoolVarP(&confirm, "yes", "y", false, "confirm dropping the schema")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:           "version",
		Short:         "Print the applied schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(mg migrator) error {
				return printVersion(cmd.OutOrStdout(), mg)
			})
		},
	})

	return cmd
}

func withMigrator(fn func(migrator) error) error {
	mg, logger, err := openMigrator()
	if err != nil {
		return err
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.Warn("failed to close migrator", "error", err)
		}
	}()
	return fn(mg)
}

func printVersion(w io.Writer, mg migrator) error {
	version, dirty, ok, err := mg.Version()
	if err != nil {
		return err
	}
	switch {
	case !ok:
		_, err = fmt.Fprintln(w, "schema version: none")
	case dirty:
		_, err = fmt.Fprintf(w, "schema version: %d (dirty)\n", version)
	default:
		_, err = fmt.Fprintf(w, "schema version: %d\n", version)
	}
	return err
}
