package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"mcdry/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound              = errors.New("record not found")
	ErrDuplicateMemberNumber = errors.New("member number already exists")
)

// Snapshot is a consistent read of every record, used by exports and mirror resyncs.
type Snapshot struct {
	Members      []core.Member
	Transactions []core.Transaction
	Leaves       []core.Leave
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// DSN builds the connection string: foreign keys on, WAL journal and
// write transactions that take the lock up front.
func DSN(dbPath string) string {
	return "file:" + dbPath +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(DSN(dbPath)); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx runs fn as one unit of work. The transaction commits when fn
// returns nil and rolls back otherwise, leaving no partial writes.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(New(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return mapError(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

func (r *SQLiteRepository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	m, err := r.queries.GetMember(ctx, id)
	if err != nil {
		return core.Member{}, fmt.Errorf("get member %d: %w", id, mapError(err))
	}
	return m, nil
}

func (r *SQLiteRepository) ListMembers(ctx context.Context) ([]core.Member, error) {
	members, err := r.queries.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// Summary returns the member count and the sum of all balances.
func (r *SQLiteRepository) Summary(ctx context.Context) (core.LedgerSummary, error) {
	s, err := r.queries.MemberSummary(ctx)
	if err != nil {
		return core.LedgerSummary{}, fmt.Errorf("member summary: %w", err)
	}
	return s, nil
}

// ListTransactions returns a member's transactions, newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, memberID int64) ([]core.Transaction, error) {
	txs, err := r.queries.ListTransactionsByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for member %d: %w", memberID, err)
	}
	return txs, nil
}

// ListLeaves returns a member's leaves, latest date first.
func (r *SQLiteRepository) ListLeaves(ctx context.Context, memberID int64) ([]core.Leave, error) {
	leaves, err := r.queries.ListLeavesByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list leaves for member %d: %w", memberID, err)
	}
	return leaves, nil
}

// Snapshot reads all records inside one transaction.
func (r *SQLiteRepository) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := r.WithTx(ctx, func(q *Queries) error {
		var err error
		if snap.Members, err = q.ListMembers(ctx); err != nil {
			return fmt.Errorf("members: %w", err)
		}
		if snap.Transactions, err = q.ListAllTransactions(ctx); err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		if snap.Leaves, err = q.ListAllLeaves(ctx); err != nil {
			return fmt.Errorf("leaves: %w", err)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	return snap, nil
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateMemberNumber) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %w", ErrDuplicateMemberNumber, err)
	}
	return err
}
