package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mcdry/internal/amqp"
	"mcdry/internal/core"
	"mcdry/internal/storage"
)

var (
	ErrMemberNotFound      = errors.New("member not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrLeaveNotFound       = errors.New("leave not found")
)

// LedgerService owns every balance mutation. Each one commits together with
// the transaction record that justifies it, so a member's balance always
// equals the sum of its transactions.
type LedgerService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
	now       func() time.Time
}

func NewLedgerService(repo *storage.SQLiteRepository, publisher EventPublisher) *LedgerService {
	return &LedgerService{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateMember inserts a member. A non-zero initial balance is posted as an
// opening transaction in the same unit of work.
func (s *LedgerService) CreateMember(ctx context.Context, number, name string, initial core.Money) (core.Member, error) {
	m := core.Member{
		Number: strings.TrimSpace(number),
		Name:   strings.TrimSpace(name),
	}
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		exists, err := q.MemberNumberExists(ctx, m.Number)
		if err != nil {
			return fmt.Errorf("check member number: %w", err)
		}
		if exists {
			return storage.ErrDuplicateMemberNumber
		}

		now := s.now()
		if m.ID, err = q.CreateMember(ctx, m.Number, m.Name, now); err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		if initial.IsZero() {
			return nil
		}
		if _, err := q.CreateTransaction(ctx, m.ID, initial, core.OpeningBalanceDescription, now); err != nil {
			return fmt.Errorf("insert opening balance: %w", err)
		}
		if _, err := q.AddMemberBalance(ctx, m.ID, initial.Cents); err != nil {
			return fmt.Errorf("apply opening balance: %w", err)
		}
		m.Balance = initial
		return nil
	})
	if err != nil {
		return core.Member{}, fmt.Errorf("create member %q: %w", m.Number, err)
	}

	slog.InfoContext(ctx, "Member created",
		"member_id", m.ID,
		"member_number", m.Number,
		"balance_cents", m.Balance.Cents)
	publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventMemberCreated, m.ID, m.ID))
	return m, nil
}

// RecordTransaction posts amount in the given direction and returns the
// stored transaction. amount must be non-negative; the direction sets the sign.
func (s *LedgerService) RecordTransaction(ctx context.Context, memberID int64, amount core.Money, description string, dir core.Direction) (core.Transaction, error) {
	tx, err := s.newTransaction(memberID, amount, description, dir)
	if err != nil {
		return core.Transaction{}, err
	}

	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		return insertTransaction(ctx, q, &tx)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record transaction for member %d: %w", memberID, err)
	}

	s.transactionRecorded(ctx, tx)
	return tx, nil
}

// newTransaction validates a posting and builds the signed record.
func (s *LedgerService) newTransaction(memberID int64, amount core.Money, description string, dir core.Direction) (core.Transaction, error) {
	if amount.IsNegative() {
		return core.Transaction{}, fmt.Errorf("%w: amount must not be negative", core.ErrInvalidAmount)
	}
	if dir != core.Credit && dir != core.Debit {
		return core.Transaction{}, core.ErrInvalidDirection
	}
	desc, err := core.DescriptionOrDefault(description)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		MemberID:    memberID,
		Amount:      dir.Signed(amount),
		Description: desc,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// insertTransaction stores tx and moves the balance by its amount.
func insertTransaction(ctx context.Context, q *storage.Queries, tx *core.Transaction) error {
	n, err := q.AddMemberBalance(ctx, tx.MemberID, tx.Amount.Cents)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		return ErrMemberNotFound
	}
	if tx.ID, err = q.CreateTransaction(ctx, tx.MemberID, tx.Amount, tx.Description, tx.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *LedgerService) transactionRecorded(ctx context.Context, tx core.Transaction) {
	slog.InfoContext(ctx, "Transaction recorded",
		"member_id", tx.MemberID,
		"transaction_id", tx.ID,
		"amount_cents", tx.Amount.Cents,
		"description", tx.Description)
	publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventTransactionRecorded, tx.MemberID, tx.ID))
}

// DeleteTransaction removes a transaction and takes its amount back out of
// the owner's balance. It returns the removed record.
func (s *LedgerService) DeleteTransaction(ctx context.Context, transactionID int64) (core.Transaction, error) {
	var tx core.Transaction
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		tx, err = q.GetTransaction(ctx, transactionID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if _, err := q.AddMemberBalance(ctx, tx.MemberID, tx.Amount.Neg().Cents); err != nil {
			return fmt.Errorf("reverse balance: %w", err)
		}
		if err := q.DeleteTransaction(ctx, tx.ID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("delete transaction %d: %w", transactionID, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"member_id", tx.MemberID,
		"transaction_id", tx.ID,
		"amount_cents", tx.Amount.Cents)
	publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventTransactionDeleted, tx.MemberID, tx.ID))
	return tx, nil
}

// DeleteMember removes a member together with its transactions and leaves.
func (s *LedgerService) DeleteMember(ctx context.Context, memberID int64) (core.Member, error) {
	var m core.Member
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		m, err = q.GetMember(ctx, memberID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMemberNotFound
		}
		if err != nil {
			return fmt.Errorf("load member: %w", err)
		}
		if err := q.DeleteMemberTransactions(ctx, memberID); err != nil {
			return fmt.Errorf("delete transactions: %w", err)
		}
		if err := q.DeleteMemberLeaves(ctx, memberID); err != nil {
			return fmt.Errorf("delete leaves: %w", err)
		}
		if _, err := q.DeleteMember(ctx, memberID); err != nil {
			return fmt.Errorf("delete member row: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Member{}, fmt.Errorf("delete member %d: %w", memberID, err)
	}

	slog.InfoContext(ctx, "Member deleted", "member_id", m.ID, "member_number", m.Number)
	publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventMemberDeleted, m.ID, m.ID))
	return m, nil
}

// VerifyBalances lists every member whose cached balance differs from the
// sum of its transactions.
func (s *LedgerService) VerifyBalances(ctx context.Context) ([]core.BalanceDrift, error) {
	var drifts []core.BalanceDrift
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		drifts, err = findDrifts(ctx, q)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("verify balances: %w", err)
	}
	return drifts, nil
}

// RepairBalances rewrites drifted balances from the transaction log and
// returns what it fixed.
func (s *LedgerService) RepairBalances(ctx context.Context) ([]core.BalanceDrift, error) {
	var drifts []core.BalanceDrift
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		if drifts, err = findDrifts(ctx, q); err != nil {
			return err
		}
		for _, d := range drifts {
			if err := q.SetMemberBalance(ctx, d.MemberID, d.Expected.Cents); err != nil {
				return fmt.Errorf("repair member %d: %w", d.MemberID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("repair balances: %w", err)
	}

	for _, d := range drifts {
		slog.WarnContext(ctx, "Balance repaired",
			"member_id", d.MemberID,
			"from_cents", d.Balance.Cents,
			"to_cents", d.Expected.Cents)
		publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventBalanceRepaired, d.MemberID, 0))
	}
	return drifts, nil
}

func findDrifts(ctx context.Context, q *storage.Queries) ([]core.BalanceDrift, error) {
	members, err := q.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	var drifts []core.BalanceDrift
	for _, m := range members {
		sum, err := q.SumTransactionsByMember(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("sum transactions for member %d: %w", m.ID, err)
		}
		if sum != m.Balance {
			drifts = append(drifts, core.BalanceDrift{
				MemberID: m.ID,
				Number:   m.Number,
				Balance:  m.Balance,
				Expected: sum,
			})
		}
	}
	return drifts, nil
}
