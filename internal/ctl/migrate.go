package ctl

import (
	"fmt"
	"os"
	"path/filepath"

	"mcdry/internal/storage"

	"github.com/spf13/cobra"
)

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(filepath.Dir(a.dbPath), 0755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			if err := storage.RunMigrations(storage.DSN(a.dbPath)); err != nil {
				return err
			}
			return a.printVersion()
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the given number of migrations. With --steps 0 every
migration is reverted and all data is lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.RollbackMigrations(storage.DSN(a.dbPath), steps); err != nil {
				return err
			}
			return a.printVersion()
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 for all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printVersion()
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

func (a *app) printVersion() error {
	v, dirty, ok, err := storage.MigrationVersion(storage.DSN(a.dbPath))
	if err != nil {
		return err
	}
	switch {
	case !ok:
		a.printf("schema: none\n")
	case dirty:
		a.printf("schema: version %d (dirty)\n", v)
	default:
		a.printf("schema: version %d\n", v)
	}
	return nil
}
