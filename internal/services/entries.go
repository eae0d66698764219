package services

import (
	"context"
	"fmt"

	"mcdry/internal/core"
	"mcdry/internal/storage"
)

// TransactionEntry is the posting half of a member form.
type TransactionEntry struct {
	Amount      core.Money
	Description string
	Direction   core.Direction
}

// LeaveEntry is the leave half of a member form.
type LeaveEntry struct {
	Range  core.LeaveRange
	Reason string
}

// EntryResult holds what RecordEntries stored. A field is nil when its
// entry was not requested.
type EntryResult struct {
	Transaction *core.Transaction
	Leave       *LeaveRangeResult
}

// RecordEntries posts a transaction and a leave range for one member in a
// single unit of work. Either entry may be nil. If any part fails nothing
// is written.
func (s *LedgerService) RecordEntries(ctx context.Context, memberID int64, txEntry *TransactionEntry, leaveEntry *LeaveEntry) (EntryResult, error) {
	var (
		tx     core.Transaction
		reason string
		err    error
	)
	if txEntry != nil {
		if tx, err = s.newTransaction(memberID, txEntry.Amount, txEntry.Description, txEntry.Direction); err != nil {
			return EntryResult{}, err
		}
	}
	if leaveEntry != nil {
		if reason, err = checkLeaveRange(leaveEntry.Range, leaveEntry.Reason); err != nil {
			return EntryResult{}, err
		}
	}

	var res EntryResult
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if txEntry != nil {
			if err := insertTransaction(ctx, q, &tx); err != nil {
				return err
			}
			res.Transaction = &tx
		}
		if leaveEntry != nil {
			lr, err := insertLeaveRange(ctx, q, memberID, leaveEntry.Range, reason)
			if err != nil {
				return err
			}
			res.Leave = &lr
		}
		return nil
	})
	if err != nil {
		return EntryResult{}, fmt.Errorf("record entries for member %d: %w", memberID, err)
	}

	if res.Transaction != nil {
		s.transactionRecorded(ctx, *res.Transaction)
	}
	if res.Leave != nil {
		leaveRecorded(ctx, s.publisher, memberID, *res.Leave)
	}
	return res, nil
}
