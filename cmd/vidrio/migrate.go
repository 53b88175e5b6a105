package main

import (
	"errors"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mkrupp/vidrio/internal/infra/database"
)

type migrateFunc func(cmd *cobra.Command, args []string, m *database.Migrator) error

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long: `Manage the schema of the configured database: PostgreSQL when
VIDRIO_DATABASE_URL is set, the SQLite file otherwise.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, args []string, m *database.Migrator) error {
			if err := m.Up(); err != nil {
				return err
			}

			return printVersion(cmd, args, m)
		}),
	})

	var all bool

	down := &cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, args []string, m *database.Migrator) error {
			if all {
				if err := m.Down(); err != nil {
					return err
				}

				return printVersion(cmd, args, m)
			}

			steps, err := parseSteps(args)
			if err != nil {
				return err
			}

			if err := m.Steps(-steps); err != nil {
				return err
			}

			return printVersion(cmd, args, m)
		}),
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration, dropping all tables")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE:  withMigrator(printVersion),
	})

	return cmd
}

func withMigrator(run migrateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}

		m, err := database.NewMigrator(cfg.Database)
		if err != nil {
			return err
		}

		defer func() {
			err = errors.Join(err, m.Close())
		}()

		return run(cmd, args, m)
	}
}

func printVersion(cmd *cobra.Command, _ []string, m *database.Migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	if dirty {
		cmd.Printf("version %d (dirty)\n", version)
	} else {
		cmd.Printf("version %d\n", version)
	}

	return nil
}

// parseSteps reads the optional rollback step count.
func parseSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 1, nil
	}

	steps, err := strconv.Atoi(args[0])
	if err != nil || steps < 1 {
		return 0, oops.Code("INVALID_STEPS").With("steps", args[0]).Errorf("steps must be a positive integer: %q", args[0])
	}

	return steps, nil
}
