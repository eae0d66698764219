package ctl

import (
	"fmt"
	"os"
	"time"

	"mcdry/internal/export"

	"github.com/spf13/cobra"
)

func (a *app) exportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write members, transactions and leaves to an xlsx workbook",
		Example: `  mcdryctl export
  mcdryctl export --out ledger.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				outPath = export.Filename(time.Now())
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			snap, err := repo.Snapshot(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := export.Write(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", outPath, err)
			}

			a.printf("exported %d members, %d transactions, %d leaves to %s\n",
				len(snap.Members), len(snap.Transactions), len(snap.Leaves), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default mcdry-<timestamp>.xlsx)")
	return cmd
}
