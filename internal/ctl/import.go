package ctl

import (
	"errors"
	"fmt"
	"os"

	"mcdry/internal/core"
	"mcdry/internal/storage"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// memberFile is the import format:
//
//	members:
//	  - number: "001"
//	    name: Alice
//	    balance: "120.50"
type memberFile struct {
	Members []memberEntry `yaml:"members"`
}

type memberEntry struct {
	Number  string `yaml:"number"`
	Name    string `yaml:"name"`
	Balance string `yaml:"balance"`
}

func parseMemberFile(data []byte) ([]memberEntry, error) {
	var f memberFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse member file: %w", err)
	}
	for i, m := range f.Members {
		if _, err := core.ParseSignedAmount(m.Balance); err != nil {
			return nil, fmt.Errorf("member %d (%s): balance %q: %w", i+1, m.Number, m.Balance, err)
		}
		if err := (core.Member{Number: m.Number, Name: m.Name}).Validate(); err != nil {
			return nil, fmt.Errorf("member %d (%s): %w", i+1, m.Number, err)
		}
	}
	return f.Members, nil
}

func (a *app) importCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create members from a YAML file",
		Long: `Create members listed in a YAML file. Every entry is validated
before anything is written. Members whose number already exists are
skipped. A non-zero balance becomes the opening balance transaction.

File format:
  members:
    - number: "001"
      name: Alice
      balance: "120.50"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			entries, err := parseMemberFile(data)
			if err != nil {
				return err
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()
			svc := ledger(repo)

			created, skipped := 0, 0
			for _, e := range entries {
				balance, _ := core.ParseSignedAmount(e.Balance)
				m, err := svc.CreateMember(cmd.Context(), e.Number, e.Name, balance)
				if errors.Is(err, storage.ErrDuplicateMemberNumber) {
					skipped++
					a.printf("skipped %s: number already exists\n", e.Number)
					continue
				}
				if err != nil {
					return fmt.Errorf("import %s: %w", e.Number, err)
				}
				created++
				a.printf("created %s %s (balance %s)\n", m.Number, m.Name, m.Balance)
			}
			a.printf("imported %d member(s), skipped %d\n", created, skipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML file with members")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
