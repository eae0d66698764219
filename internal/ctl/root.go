// Package ctl implements mcdryctl, the maintenance command line.
package ctl

import (
	"fmt"
	"io"
	"log/slog"

	"mcdry/internal/log"
	"mcdry/internal/services"
	"mcdry/internal/storage"

	"github.com/spf13/cobra"
)

// app carries the flags shared by every subcommand.
type app struct {
	dbPath string
	debug  bool
	out    io.Writer
}

// NewRootCommand builds the command tree. defaultDB is used when --db is
// not given; output goes to out.
func NewRootCommand(defaultDB string, out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "mcdryctl",
		Short: "Maintenance tasks for the mcdry ledger database",
		Long: `mcdryctl runs maintenance tasks against the mcdry SQLite database.

It supports:
- Applying and rolling back schema migrations
- Auditing member balances against their transactions
- Exporting the ledger to an Excel workbook
- Importing members from a YAML file
- Hashing login passwords for the environment

Example:
  mcdryctl migrate up
  mcdryctl verify --repair
  mcdryctl export --out ledger.xlsx`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.debug {
				level = slog.LevelDebug
			}
			logger := log.New(log.NewTextConfig(cmd.ErrOrStderr(), level, log.ComponentCtl))
			log.SetDefault(logger)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&a.dbPath, "db", defaultDB, "path to the SQLite database")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.migrateCommand(),
		a.verifyCommand(),
		a.exportCommand(),
		a.importCommand(),
		a.hashPasswordCommand(),
	)
	return root
}

// openRepo opens the database, applying pending migrations.
func (a *app) openRepo() (*storage.SQLiteRepository, error) {
	slog.Debug("Opening database", "path", a.dbPath)
	repo, err := storage.NewSQLiteRepository(a.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.dbPath, err)
	}
	return repo, nil
}

// ledger returns a service without an event publisher: maintenance writes
// are picked up by the worker's periodic resync.
func ledger(repo *storage.SQLiteRepository) *services.LedgerService {
	return services.NewLedgerService(repo, nil)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
