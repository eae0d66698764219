package ctl

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"mcdry/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func (a *app) hashPasswordCommand() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH or VIEWER_PASSWORD_HASH",
		Long: `Print a bcrypt hash of the password. Without an argument the
password is read from the first line of standard input, which keeps it out
of the shell history.

Example:
  echo 's3cret' | mcdryctl hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password cannot be empty")
			}
			if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
				return fmt.Errorf("invalid cost %d: must be between %d and %d", cost, bcrypt.MinCost, bcrypt.MaxCost)
			}

			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			a.printf("%s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 12, "bcrypt cost")
	return cmd
}
