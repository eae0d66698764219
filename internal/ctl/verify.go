package ctl

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ErrBalanceDrift is returned by verify when balances disagree and
// --repair was not given.
var ErrBalanceDrift = errors.New("balance drift detected")

func (a *app) verifyCommand() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every balance against the sum of its transactions",
		Long: `Check that each member's stored balance equals the sum of that
member's transactions. With --repair, drifted balances are reset to the
transaction sum.

Example:
  mcdryctl verify
  mcdryctl verify --repair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			svc := ledger(repo)
			verb, check := "drift", svc.VerifyBalances
			if repair {
				verb, check = "repaired", svc.RepairBalances
			}
			drifts, err := check(cmd.Context())
			if err != nil {
				return err
			}

			if len(drifts) == 0 {
				a.printf("all balances match their transactions\n")
				return nil
			}
			for _, d := range drifts {
				a.printf("%s member %s (id %d): balance %s, transactions sum %s, delta %s\n",
					verb, d.Number, d.MemberID, d.Balance, d.Expected, d.Delta())
			}
			if !repair {
				return fmt.Errorf("%w: %d member(s); rerun with --repair", ErrBalanceDrift, len(drifts))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "reset drifted balances to the transaction sum")
	return cmd
}
