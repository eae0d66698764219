package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"mcdry/internal/amqp"
	"mcdry/internal/core"
	"mcdry/internal/storage"
)

// LeaveRangeResult reports what a range request did. Requested counts every
// day of the span; Inserted and Skipped split it into new and already
// recorded days.
type LeaveRangeResult struct {
	Range     core.LeaveRange
	Requested int
	Inserted  int
	Skipped   int
}

type LeaveService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

func NewLeaveService(repo *storage.SQLiteRepository, publisher EventPublisher) *LeaveService {
	return &LeaveService{repo: repo, publisher: publisher}
}

// RecordLeaveRange records one leave per day of r for the member, skipping
// days already on record. The batch commits as a whole or not at all.
func (s *LeaveService) RecordLeaveRange(ctx context.Context, memberID int64, r core.LeaveRange, reason string) (LeaveRangeResult, error) {
	reason, err := checkLeaveRange(r, reason)
	if err != nil {
		return LeaveRangeResult{}, err
	}

	var res LeaveRangeResult
	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		res, err = insertLeaveRange(ctx, q, memberID, r, reason)
		return err
	})
	if err != nil {
		return LeaveRangeResult{}, fmt.Errorf("record leave for member %d: %w", memberID, err)
	}

	leaveRecorded(ctx, s.publisher, memberID, res)
	return res, nil
}

// checkLeaveRange validates the range and returns the reason to store.
func checkLeaveRange(r core.LeaveRange, reason string) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return core.ReasonOrDefault(reason)
}

func insertLeaveRange(ctx context.Context, q *storage.Queries, memberID int64, r core.LeaveRange, reason string) (LeaveRangeResult, error) {
	res := LeaveRangeResult{Range: r, Requested: r.Days()}
	if _, err := q.GetMember(ctx, memberID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, ErrMemberNotFound
		}
		return res, fmt.Errorf("load member: %w", err)
	}
	for _, day := range r.Dates() {
		exists, err := q.LeaveExists(ctx, memberID, day)
		if err != nil {
			return res, fmt.Errorf("check leave %s: %w", day, err)
		}
		if exists {
			res.Skipped++
			continue
		}
		if _, err := q.CreateLeave(ctx, memberID, day, reason); err != nil {
			return res, fmt.Errorf("insert leave %s: %w", day, err)
		}
		res.Inserted++
	}
	return res, nil
}

func leaveRecorded(ctx context.Context, p EventPublisher, memberID int64, res LeaveRangeResult) {
	slog.InfoContext(ctx, "Leave recorded",
		"member_id", memberID,
		"start", res.Range.Start.String(),
		"end", res.Range.End.String(),
		"requested", res.Requested,
		"inserted", res.Inserted,
		"skipped", res.Skipped)
	if res.Inserted > 0 {
		e := amqp.NewLedgerEvent(amqp.EventLeaveRecorded, memberID, 0)
		e.Count = res.Inserted
		publish(ctx, p, e)
	}
}

// DeleteLeave removes a single leave record and returns it.
func (s *LeaveService) DeleteLeave(ctx context.Context, leaveID int64) (core.Leave, error) {
	var l core.Leave
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		l, err = q.GetLeave(ctx, leaveID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrLeaveNotFound
		}
		if err != nil {
			return fmt.Errorf("load leave: %w", err)
		}
		if _, err := q.DeleteLeave(ctx, leaveID); err != nil {
			return fmt.Errorf("delete leave row: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Leave{}, fmt.Errorf("delete leave %d: %w", leaveID, err)
	}

	slog.InfoContext(ctx, "Leave deleted", "member_id", l.MemberID, "leave_id", l.ID, "date", l.Date.String())
	publish(ctx, s.publisher, amqp.NewLedgerEvent(amqp.EventLeaveDeleted, l.MemberID, l.ID))
	return l, nil
}
