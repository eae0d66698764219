package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mcdry/internal/amqp"
	"mcdry/internal/core"
	"mcdry/internal/sheets"
	"mcdry/internal/storage"

	"golang.org/x/sync/errgroup"
)

// MirrorWorker keeps a BalanceMirror in step with the database. Events are
// only hints: the worker always re-reads the member before writing.
type MirrorWorker struct {
	repo   *storage.SQLiteRepository
	mirror sheets.BalanceMirror
}

func NewMirrorWorker(repo *storage.SQLiteRepository, mirror sheets.BalanceMirror) *MirrorWorker {
	return &MirrorWorker{repo: repo, mirror: mirror}
}

// HandleEvent refreshes the mirror row of the event's member.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e amqp.LedgerEvent) error {
	m, err := w.repo.GetMember(ctx, e.MemberID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := w.mirror.RemoveMember(ctx, e.MemberID); err != nil {
			return fmt.Errorf("remove member %d from mirror: %w", e.MemberID, err)
		}
		slog.InfoContext(ctx, "Member removed from mirror", "member_id", e.MemberID, "event_type", e.Type)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load member %d: %w", e.MemberID, err)
	}

	leaves, err := w.repo.ListLeaves(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load leaves for member %d: %w", m.ID, err)
	}

	if err := w.mirror.UpsertMember(ctx, toRow(m, len(leaves))); err != nil {
		return fmt.Errorf("upsert member %d: %w", m.ID, err)
	}
	slog.InfoContext(ctx, "Member mirrored",
		"member_id", m.ID,
		"event_type", e.Type,
		"balance_cents", m.Balance.Cents)
	return nil
}

// Resync rebuilds the whole mirror from a database snapshot.
func (w *MirrorWorker) Resync(ctx context.Context) error {
	snap, err := w.repo.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	leaveDays := make(map[int64]int, len(snap.Members))
	for _, l := range snap.Leaves {
		leaveDays[l.MemberID]++
	}
	rows := make([]sheets.MemberRow, 0, len(snap.Members))
	for _, m := range snap.Members {
		rows = append(rows, toRow(m, leaveDays[m.ID]))
	}

	if err := w.mirror.ReplaceAll(ctx, rows); err != nil {
		return fmt.Errorf("resync: replace rows: %w", err)
	}
	slog.InfoContext(ctx, "Mirror resynced", "members", len(rows))
	return nil
}

// Consumer is satisfied by *amqp.Client.
type Consumer interface {
	ConsumeLedgerEvents(ctx context.Context, handler func(context.Context, amqp.LedgerEvent) error) error
}

// Run resyncs once, then consumes events and resyncs every interval until
// ctx is cancelled or the consumer fails.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer, interval time.Duration) error {
	if err := w.Resync(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial mirror resync failed", "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.ConsumeLedgerEvents(ctx, w.HandleEvent)
	})
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := w.Resync(ctx); err != nil {
					slog.ErrorContext(ctx, "Periodic mirror resync failed", "error", err)
				}
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func toRow(m core.Member, leaveDays int) sheets.MemberRow {
	return sheets.MemberRow{
		MemberID:  m.ID,
		Number:    m.Number,
		Name:      m.Name,
		Balance:   m.Balance,
		LeaveDays: leaveDays,
	}
}
