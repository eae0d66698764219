package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the textual form of leave dates, both in forms and storage.
const DateLayout = "2006-01-02"

// MaxLeaveDays caps a single range request.
const MaxLeaveDays = 366

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrLeaveRangeReversed = errors.New("end date is before start date")
	ErrLeaveRangeTooLong  = fmt.Errorf("leave range longer than %d days", MaxLeaveDays)
)

// Date is a calendar day at UTC midnight.
type Date struct {
	time.Time
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD. Impossible days such as 2025-02-30 are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// DaysUntil counts whole days from d to o; negative when o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.Sub(d.Time).Hours() / 24)
}

// DateError is the failed outcome of parsing one field of a leave request.
type DateError struct {
	Field string
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("%s: invalid date %q (expected YYYY-MM-DD)", e.Field, e.Value)
}

func (e *DateError) Unwrap() error { return ErrInvalidDate }

// LeaveRange is a validated, inclusive span of calendar days.
type LeaveRange struct {
	Start Date
	End   Date
}

// ParseLeaveRange validates a leave request before anything is written.
// An empty end means a single day. The returned error is a *DateError for
// unparseable input or ErrLeaveRangeReversed when end precedes start.
func ParseLeaveRange(start, end string) (LeaveRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return LeaveRange{}, &DateError{Field: "start_date", Value: start}
	}
	if strings.TrimSpace(end) == "" {
		return LeaveRange{Start: s, End: s}, nil
	}
	e, err := ParseDate(end)
	if err != nil {
		return LeaveRange{}, &DateError{Field: "end_date", Value: end}
	}
	r := LeaveRange{Start: s, End: e}
	if err := r.Validate(); err != nil {
		return LeaveRange{}, err
	}
	return r, nil
}

func (r LeaveRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrInvalidDate
	}
	if r.End.Before(r.Start.Time) {
		return ErrLeaveRangeReversed
	}
	if r.End.After(r.Start.AddDays(MaxLeaveDays - 1).Time) {
		return ErrLeaveRangeTooLong
	}
	return nil
}

// Days is the number of calendar days in the range, both ends included.
func (r LeaveRange) Days() int {
	return r.Start.DaysUntil(r.End) + 1
}

// Dates lists every day of the range in order.
func (r LeaveRange) Dates() []Date {
	n := r.Days()
	if n <= 0 {
		return nil
	}
	out := make([]Date, 0, n)
	for d := r.Start; !d.After(r.End.Time); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}
