package sheets

import (
	"context"

	"mcdry/internal/core"
)

// MemberRow is one line of the mirrored balance sheet.
type MemberRow struct {
	MemberID  int64
	Number    string
	Name      string
	Balance   core.Money
	LeaveDays int
}

// BalanceMirror keeps an external copy of member balances. The database
// stays authoritative; a mirror may lag and is rebuilt with ReplaceAll.
type BalanceMirror interface {
	UpsertMember(ctx context.Context, row MemberRow) error
	RemoveMember(ctx context.Context, memberID int64) error
	ReplaceAll(ctx context.Context, rows []MemberRow) error
}
