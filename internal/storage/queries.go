package storage

import (
	"context"
	"database/sql"
	"time"

	"mcdry/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements of the record store. Inside a unit of
// work it is bound to the transaction; otherwise to the pool.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const createMember = `INSERT INTO members (member_number, name, balance_cents, created_at)
VALUES (?, ?, 0, ?)`

func (q *Queries) CreateMember(ctx context.Context, number, name string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, createMember, number, name, now.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getMember = `SELECT id, member_number, name, balance_cents FROM members WHERE id = ?`

func (q *Queries) GetMember(ctx context.Context, id int64) (core.Member, error) {
	return scanMember(q.db.QueryRowContext(ctx, getMember, id))
}

const memberNumberExists = `SELECT EXISTS(SELECT 1 FROM members WHERE member_number = ?)`

func (q *Queries) MemberNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, memberNumberExists, number).Scan(&exists)
	return exists, err
}

const listMembers = `SELECT id, member_number, name, balance_cents FROM members ORDER BY id`

func (q *Queries) ListMembers(ctx context.Context) ([]core.Member, error) {
	rows, err := q.db.QueryContext(ctx, listMembers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const memberSummary = `SELECT COUNT(*), COALESCE(SUM(balance_cents), 0) FROM members`

func (q *Queries) MemberSummary(ctx context.Context) (core.LedgerSummary, error) {
	var s core.LedgerSummary
	err := q.db.QueryRowContext(ctx, memberSummary).Scan(&s.MemberCount, &s.TotalBalance.Cents)
	return s, err
}

const addMemberBalance = `UPDATE members SET balance_cents = balance_cents + ? WHERE id = ?`

// AddMemberBalance shifts the cached balance by delta cents.
func (q *Queries) AddMemberBalance(ctx context.Context, id int64, delta int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, addMemberBalance, delta, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const setMemberBalance = `UPDATE members SET balance_cents = ? WHERE id = ?`

func (q *Queries) SetMemberBalance(ctx context.Context, id int64, cents int64) error {
	_, err := q.db.ExecContext(ctx, setMemberBalance, cents, id)
	return err
}

const deleteMember = `DELETE FROM members WHERE id = ?`

func (q *Queries) DeleteMember(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteMember, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteMemberTransactions = `DELETE FROM transactions WHERE member_id = ?`

func (q *Queries) DeleteMemberTransactions(ctx context.Context, memberID int64) error {
	_, err := q.db.ExecContext(ctx, deleteMemberTransactions, memberID)
	return err
}

const deleteMemberLeaves = `DELETE FROM leaves WHERE member_id = ?`

func (q *Queries) DeleteMemberLeaves(ctx context.Context, memberID int64) error {
	_, err := q.db.ExecContext(ctx, deleteMemberLeaves, memberID)
	return err
}

const createTransaction = `INSERT INTO transactions (member_id, amount_cents, description, created_at)
VALUES (?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, memberID int64, amount core.Money, desc string, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, createTransaction, memberID, amount.Cents, desc, now.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getTransaction = `SELECT id, member_id, amount_cents, description, created_at FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsByMember = `SELECT id, member_id, amount_cents, description, created_at
FROM transactions WHERE member_id = ? ORDER BY created_at DESC, id DESC`

func (q *Queries) ListTransactionsByMember(ctx context.Context, memberID int64) ([]core.Transaction, error) {
	return q.listTransactions(ctx, listTransactionsByMember, memberID)
}

const listAllTransactions = `SELECT id, member_id, amount_cents, description, created_at
FROM transactions ORDER BY member_id, created_at, id`

func (q *Queries) ListAllTransactions(ctx context.Context) ([]core.Transaction, error) {
	return q.listTransactions(ctx, listAllTransactions)
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

const sumTransactionsByMember = `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions WHERE member_id = ?`

func (q *Queries) SumTransactionsByMember(ctx context.Context, memberID int64) (core.Money, error) {
	var m core.Money
	err := q.db.QueryRowContext(ctx, sumTransactionsByMember, memberID).Scan(&m.Cents)
	return m, err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteTransaction, id)
	return err
}

const leaveExists = `SELECT EXISTS(SELECT 1 FROM leaves WHERE member_id = ? AND leave_date = ?)`

func (q *Queries) LeaveExists(ctx context.Context, memberID int64, day core.Date) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, leaveExists, memberID, day.String()).Scan(&exists)
	return exists, err
}

const createLeave = `INSERT INTO leaves (member_id, leave_date, reason) VALUES (?, ?, ?)`

func (q *Queries) CreateLeave(ctx context.Context, memberID int64, day core.Date, reason string) (int64, error) {
	res, err := q.db.ExecContext(ctx, createLeave, memberID, day.String(), reason)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getLeave = `SELECT id, member_id, leave_date, reason FROM leaves WHERE id = ?`

func (q *Queries) GetLeave(ctx context.Context, id int64) (core.Leave, error) {
	return scanLeave(q.db.QueryRowContext(ctx, getLeave, id))
}

const listLeavesByMember = `SELECT id, member_id, leave_date, reason
FROM leaves WHERE member_id = ? ORDER BY leave_date DESC, id DESC`

func (q *Queries) ListLeavesByMember(ctx context.Context, memberID int64) ([]core.Leave, error) {
	return q.listLeaves(ctx, listLeavesByMember, memberID)
}

const listAllLeaves = `SELECT id, member_id, leave_date, reason FROM leaves ORDER BY member_id, leave_date, id`

func (q *Queries) ListAllLeaves(ctx context.Context) ([]core.Leave, error) {
	return q.listLeaves(ctx, listAllLeaves)
}

func (q *Queries) listLeaves(ctx context.Context, query string, args ...any) ([]core.Leave, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

const deleteLeave = `DELETE FROM leaves WHERE id = ?`

func (q *Queries) DeleteLeave(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteLeave, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(s scanner) (core.Member, error) {
	var m core.Member
	err := s.Scan(&m.ID, &m.Number, &m.Name, &m.Balance.Cents)
	return m, err
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		tx      core.Transaction
		created int64
	)
	if err := s.Scan(&tx.ID, &tx.MemberID, &tx.Amount.Cents, &tx.Description, &created); err != nil {
		return core.Transaction{}, err
	}
	tx.CreatedAt = time.Unix(0, created).UTC()
	return tx, nil
}

func scanLeave(s scanner) (core.Leave, error) {
	var (
		l   core.Leave
		day string
	)
	if err := s.Scan(&l.ID, &l.MemberID, &day, &l.Reason); err != nil {
		return core.Leave{}, err
	}
	d, err := core.ParseDate(day)
	if err != nil {
		return core.Leave{}, err
	}
	l.Date = d
	return l, nil
}
