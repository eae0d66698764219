package services

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"mcdry/internal/amqp"
	"mcdry/internal/core"
	"mcdry/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	path   string
	repo   *storage.SQLiteRepository
	ledger *LedgerService
	leaves *LeaveService
	pub    *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcdry.db")
	repo, err := storage.NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	pub := &recordingPublisher{}
	return &fixture{
		path:   path,
		repo:   repo,
		ledger: NewLedgerService(repo, pub),
		leaves: NewLeaveService(repo, pub),
		pub:    pub,
	}
}

func (f *fixture) member(t *testing.T, number string) core.Member {
	t.Helper()
	m, err := f.ledger.CreateMember(context.Background(), number, "Member "+number, core.Money{})
	if err != nil {
		t.Fatalf("CreateMember(%s): %v", number, err)
	}
	return m
}

func (f *fixture) balance(t *testing.T, id int64) int64 {
	t.Helper()
	m, err := f.repo.GetMember(context.Background(), id)
	if err != nil {
		t.Fatalf("GetMember(%d): %v", id, err)
	}
	return m.Balance.Cents
}

func (f *fixture) assertInvariant(t *testing.T) {
	t.Helper()
	drifts, err := f.ledger.VerifyBalances(context.Background())
	if err != nil {
		t.Fatalf("VerifyBalances: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("balance drift: %+v", drifts)
	}
}

// exec runs raw SQL on a second connection, for schema tricks the
// repository does not expose.
func (f *fixture) exec(t *testing.T, query string) {
	t.Helper()
	db, err := sql.Open("sqlite", storage.DSN(f.path))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func cents(c int64) core.Money { return core.Money{Cents: c} }

func TestLedgerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")

	credit, err := f.ledger.RecordTransaction(ctx, m.ID, cents(100000), "", core.Credit)
	if err != nil {
		t.Fatal(err)
	}
	if credit.Description != core.DefaultTransactionDescription {
		t.Errorf("description = %q, want default", credit.Description)
	}
	if got := f.balance(t, m.ID); got != 100000 {
		t.Fatalf("after credit balance = %d, want 100000", got)
	}

	if _, err := f.ledger.RecordTransaction(ctx, m.ID, cents(30000), "Dues", core.Debit); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, m.ID); got != 70000 {
		t.Fatalf("after debit balance = %d, want 70000", got)
	}

	if _, err := f.ledger.DeleteTransaction(ctx, credit.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, m.ID); got != -30000 {
		t.Fatalf("after delete balance = %d, want -30000", got)
	}
	f.assertInvariant(t)

	txs, err := f.repo.ListTransactions(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 || txs[0].Amount.Cents != -30000 || txs[0].Description != "Dues" {
		t.Errorf("remaining transactions = %+v", txs)
	}
}

func TestDeleteDebitRaisesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")

	debit, err := f.ledger.RecordTransaction(ctx, m.ID, cents(50000), "fine", core.Debit)
	if err != nil {
		t.Fatal(err)
	}
	before := f.balance(t, m.ID)
	if _, err := f.ledger.DeleteTransaction(ctx, debit.ID); err != nil {
		t.Fatal(err)
	}
	if got := f.balance(t, m.ID) - before; got != 50000 {
		t.Errorf("balance rose by %d, want 50000", got)
	}
	f.assertInvariant(t)
}

func TestCreateMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("opening balance is a transaction", func(t *testing.T) {
		m, err := f.ledger.CreateMember(ctx, " A-1 ", "Alice", cents(-1250))
		if err != nil {
			t.Fatal(err)
		}
		if m.Number != "A-1" || m.Balance.Cents != -1250 {
			t.Errorf("member = %+v", m)
		}
		txs, _ := f.repo.ListTransactions(ctx, m.ID)
		if len(txs) != 1 || txs[0].Description != core.OpeningBalanceDescription {
			t.Errorf("transactions = %+v", txs)
		}
		f.assertInvariant(t)
	})

	t.Run("zero balance has no transactions", func(t *testing.T) {
		m := f.member(t, "B-1")
		txs, _ := f.repo.ListTransactions(ctx, m.ID)
		if len(txs) != 0 {
			t.Errorf("transactions = %+v", txs)
		}
	})

	t.Run("duplicate number", func(t *testing.T) {
		_, err := f.ledger.CreateMember(ctx, "A-1", "Someone Else", cents(500))
		if !errors.Is(err, storage.ErrDuplicateMemberNumber) {
			t.Fatalf("error = %v, want ErrDuplicateMemberNumber", err)
		}
		sum, _ := f.repo.Summary(ctx)
		if sum.MemberCount != 2 || sum.TotalBalance.Cents != -1250 {
			t.Errorf("summary after duplicate = %+v", sum)
		}
	})

	t.Run("validation", func(t *testing.T) {
		if _, err := f.ledger.CreateMember(ctx, "", "x", cents(0)); !errors.Is(err, core.ErrEmptyMemberNumber) {
			t.Errorf("error = %v, want ErrEmptyMemberNumber", err)
		}
		if _, err := f.ledger.CreateMember(ctx, "C-1", "  ", cents(0)); !errors.Is(err, core.ErrEmptyMemberName) {
			t.Errorf("error = %v, want ErrEmptyMemberName", err)
		}
	})
}

func TestRecordTransactionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")

	tests := []struct {
		name     string
		memberID int64
		amount   core.Money
		dir      core.Direction
		want     error
	}{
		{"unknown member", 999, cents(100), core.Credit, ErrMemberNotFound},
		{"negative amount", m.ID, cents(-100), core.Credit, core.ErrInvalidAmount},
		{"bad direction", m.ID, cents(100), core.Direction("sideways"), core.ErrInvalidDirection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.RecordTransaction(ctx, tt.memberID, tt.amount, "", tt.dir)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := f.balance(t, m.ID); got != 0 {
		t.Errorf("balance = %d after rejected postings, want 0", got)
	}
	txs, _ := f.repo.ListTransactions(ctx, m.ID)
	if len(txs) != 0 {
		t.Errorf("transactions = %+v, want none", txs)
	}
}

func TestDeleteTransactionNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.DeleteTransaction(context.Background(), 12345)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("error = %v, want ErrTransactionNotFound", err)
	}
}

func TestDeleteMemberCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")
	keep := f.member(t, "M2")

	if _, err := f.ledger.RecordTransaction(ctx, m.ID, cents(1000), "", core.Credit); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.RecordTransaction(ctx, keep.ID, cents(700), "", core.Credit); err != nil {
		t.Fatal(err)
	}
	r, _ := core.ParseLeaveRange("2025-01-01", "2025-01-03")
	if _, err := f.leaves.RecordLeaveRange(ctx, m.ID, r, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ledger.DeleteMember(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.GetMember(ctx, m.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMember after delete error = %v", err)
	}

	snap, err := f.repo.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Members) != 1 || len(snap.Transactions) != 1 || len(snap.Leaves) != 0 {
		t.Errorf("snapshot = %d members, %d transactions, %d leaves", len(snap.Members), len(snap.Transactions), len(snap.Leaves))
	}

	if _, err := f.ledger.DeleteMember(ctx, m.ID); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("second delete error = %v, want ErrMemberNotFound", err)
	}
}

func TestRecordLeaveRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")

	t.Run("single day", func(t *testing.T) {
		r, _ := core.ParseLeaveRange("2025-03-10", "2025-03-10")
		res, err := f.leaves.RecordLeaveRange(ctx, m.ID, r, "x")
		if err != nil {
			t.Fatal(err)
		}
		if res.Requested != 1 || res.Inserted != 1 || res.Skipped != 0 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("skips existing days", func(t *testing.T) {
		r, _ := core.ParseLeaveRange("2025-03-09", "2025-03-11")
		res, err := f.leaves.RecordLeaveRange(ctx, m.ID, r, "")
		if err != nil {
			t.Fatal(err)
		}
		if res.Requested != 3 || res.Inserted != 2 || res.Skipped != 1 {
			t.Errorf("result = %+v, want requested 3 inserted 2 skipped 1", res)
		}
		leaves, _ := f.repo.ListLeaves(ctx, m.ID)
		if len(leaves) != 3 {
			t.Fatalf("leaves = %d, want 3", len(leaves))
		}
		if leaves[0].Date.String() != "2025-03-11" || leaves[0].Reason != core.DefaultLeaveReason {
			t.Errorf("newest leave = %+v", leaves[0])
		}
	})

	t.Run("reversed range writes nothing", func(t *testing.T) {
		r := core.LeaveRange{Start: core.NewDate(2025, 4, 5), End: core.NewDate(2025, 4, 1)}
		_, err := f.leaves.RecordLeaveRange(ctx, m.ID, r, "")
		if !errors.Is(err, core.ErrLeaveRangeReversed) {
			t.Fatalf("error = %v, want ErrLeaveRangeReversed", err)
		}
		leaves, _ := f.repo.ListLeaves(ctx, m.ID)
		if len(leaves) != 3 {
			t.Errorf("leaves = %d, want unchanged 3", len(leaves))
		}
	})

	t.Run("unknown member", func(t *testing.T) {
		r, _ := core.ParseLeaveRange("2025-05-01", "")
		if _, err := f.leaves.RecordLeaveRange(ctx, 999, r, ""); !errors.Is(err, ErrMemberNotFound) {
			t.Errorf("error = %v, want ErrMemberNotFound", err)
		}
	})
}

func TestDeleteLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")
	r, _ := core.ParseLeaveRange("2025-06-01", "")
	if _, err := f.leaves.RecordLeaveRange(ctx, m.ID, r, "Sick"); err != nil {
		t.Fatal(err)
	}
	leaves, _ := f.repo.ListLeaves(ctx, m.ID)

	l, err := f.leaves.DeleteLeave(ctx, leaves[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if l.Reason != "Sick" || l.MemberID != m.ID {
		t.Errorf("deleted leave = %+v", l)
	}
	if _, err := f.leaves.DeleteLeave(ctx, leaves[0].ID); !errors.Is(err, ErrLeaveNotFound) {
		t.Errorf("second delete error = %v, want ErrLeaveNotFound", err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pub.err = errors.New("broker down")

	m := f.member(t, "M1")
	tx, err := f.ledger.RecordTransaction(ctx, m.ID, cents(100), "", core.Credit)
	if err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	if _, err := f.ledger.RecordTransaction(ctx, 999, cents(100), "", core.Credit); err == nil {
		t.Fatal("expected error for unknown member")
	}
	if _, err := f.ledger.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatal(err)
	}

	want := []amqp.EventType{amqp.EventMemberCreated, amqp.EventTransactionRecorded, amqp.EventTransactionDeleted}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRepairBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")
	if _, err := f.ledger.RecordTransaction(ctx, m.ID, cents(900), "", core.Credit); err != nil {
		t.Fatal(err)
	}

	// Corrupt the cached balance behind the service's back.
	err := f.repo.WithTx(ctx, func(q *storage.Queries) error {
		return q.SetMemberBalance(ctx, m.ID, 5)
	})
	if err != nil {
		t.Fatal(err)
	}

	drifts, err := f.ledger.VerifyBalances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(drifts) != 1 || drifts[0].Delta().Cents != -895 {
		t.Fatalf("drifts = %+v", drifts)
	}

	if _, err := f.ledger.RepairBalances(ctx); err != nil {
		t.Fatal(err)
	}
	f.assertInvariant(t)
	if types := f.pub.types(); types[len(types)-1] != amqp.EventBalanceRepaired {
		t.Errorf("last event = %s, want %s", types[len(types)-1], amqp.EventBalanceRepaired)
	}
	if got := f.balance(t, m.ID); got != 900 {
		t.Errorf("balance = %d, want 900", got)
	}
}

func TestNilPublisher(t *testing.T) {
	f := newFixture(t)
	svc := NewLedgerService(f.repo, nil)
	if _, err := svc.CreateMember(context.Background(), "N1", "Nobody", cents(10)); err != nil {
		t.Fatalf("CreateMember with nil publisher: %v", err)
	}
}

func TestRecordEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")
	r, _ := core.ParseLeaveRange("2025-03-01", "2025-03-02")

	res, err := f.ledger.RecordEntries(ctx, m.ID,
		&TransactionEntry{Amount: cents(2500), Direction: core.Debit},
		&LeaveEntry{Range: r, Reason: "Trip"})
	if err != nil {
		t.Fatalf("RecordEntries: %v", err)
	}
	if res.Transaction == nil || res.Transaction.Amount.Cents != -2500 {
		t.Errorf("transaction = %+v", res.Transaction)
	}
	if res.Leave == nil || res.Leave.Inserted != 2 {
		t.Errorf("leave = %+v", res.Leave)
	}
	if got := f.balance(t, m.ID); got != -2500 {
		t.Errorf("balance = %d, want -2500", got)
	}
	f.assertInvariant(t)

	res, err = f.ledger.RecordEntries(ctx, m.ID, nil, &LeaveEntry{Range: r})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transaction != nil || res.Leave.Skipped != 2 {
		t.Errorf("leave-only result = %+v / %+v", res.Transaction, res.Leave)
	}
}

func TestRecordEntriesLeaveFailureRollsBackTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")
	before := len(f.pub.types())

	f.exec(t, `CREATE TRIGGER block_leaves BEFORE INSERT ON leaves
		BEGIN SELECT RAISE(ABORT, 'leaves blocked'); END`)

	r, _ := core.ParseLeaveRange("2024-03-01", "")
	_, err := f.ledger.RecordEntries(ctx, m.ID,
		&TransactionEntry{Amount: cents(10000), Direction: core.Credit},
		&LeaveEntry{Range: r})
	if err == nil {
		t.Fatal("expected leave insert failure")
	}

	if got := f.balance(t, m.ID); got != 0 {
		t.Errorf("balance = %d, want 0 after rollback", got)
	}
	txs, err := f.repo.ListTransactions(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("transactions = %d, want 0 after rollback", len(txs))
	}
	if got := len(f.pub.types()); got != before {
		t.Errorf("published %d events for a rolled back write", got-before)
	}
}

func TestRecordEntriesValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.member(t, "M1")

	reversed := core.LeaveRange{Start: core.NewDate(2025, 4, 5), End: core.NewDate(2025, 4, 1)}
	_, err := f.ledger.RecordEntries(ctx, m.ID,
		&TransactionEntry{Amount: cents(100), Direction: core.Credit},
		&LeaveEntry{Range: reversed})
	if !errors.Is(err, core.ErrLeaveRangeReversed) {
		t.Fatalf("error = %v, want ErrLeaveRangeReversed", err)
	}
	if got := f.balance(t, m.ID); got != 0 {
		t.Errorf("balance = %d, want 0", got)
	}

	_, err = f.ledger.RecordEntries(ctx, 999, &TransactionEntry{Amount: cents(1), Direction: core.Credit}, nil)
	if !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("error = %v, want ErrMemberNotFound", err)
	}
}
