// Package http serves the bookkeeping pages.
//
// This file turns submitted forms into typed values. Parsers only validate
// shape; the services re-check everything they persist.
package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"mcdry/internal/core"

	"github.com/go-chi/chi/v5"
)

var errInvalidID = errors.New("invalid id")

// MemberForm is the "add member" form on the index page.
type MemberForm struct {
	Number         string
	Name           string
	InitialBalance core.Money
}

// ParseMemberForm reads member_id_no, name and initial_balance. An empty
// balance means zero; a negative one is allowed.
func ParseMemberForm(form url.Values) (MemberForm, error) {
	f := MemberForm{
		Number: sanitizeInput(form.Get("member_id_no")),
		Name:   sanitizeInput(form.Get("name")),
	}
	balance, err := core.ParseSignedAmount(form.Get("initial_balance"))
	if err != nil {
		return MemberForm{}, fmt.Errorf("initial balance: %w", err)
	}
	f.InitialBalance = balance

	m := core.Member{Number: f.Number, Name: f.Name}
	if err := m.Validate(); err != nil {
		return MemberForm{}, err
	}
	return f, nil
}

// TransactionForm is the credit/debit form on the member page.
type TransactionForm struct {
	Amount      core.Money
	Direction   core.Direction
	Description string
}

// HasTransaction reports whether the submitted form carries a transaction.
func HasTransaction(form url.Values) bool {
	return strings.TrimSpace(form.Get("amount")) != ""
}

// ParseTransactionForm reads amount, type and description.
func ParseTransactionForm(form url.Values) (TransactionForm, error) {
	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return TransactionForm{}, err
	}
	dir, err := core.ParseDirection(form.Get("type"))
	if err != nil {
		return TransactionForm{}, err
	}
	desc, err := core.DescriptionOrDefault(sanitizeInput(form.Get("description")))
	if err != nil {
		return TransactionForm{}, err
	}
	return TransactionForm{Amount: amount, Direction: dir, Description: desc}, nil
}

// LeaveForm is the leave form on the member page.
type LeaveForm struct {
	Range  core.LeaveRange
	Reason string
}

// HasLeave reports whether the submitted form carries a leave request.
// leave_date is the single-day field older forms post.
func HasLeave(form url.Values) bool {
	return strings.TrimSpace(form.Get("start_date")) != "" ||
		strings.TrimSpace(form.Get("leave_date")) != ""
}

// ParseLeaveForm reads start_date, end_date and reason. An empty end date
// records a single day.
func ParseLeaveForm(form url.Values) (LeaveForm, error) {
	start := strings.TrimSpace(form.Get("start_date"))
	if start == "" {
		start = strings.TrimSpace(form.Get("leave_date"))
	}
	r, err := core.ParseLeaveRange(start, strings.TrimSpace(form.Get("end_date")))
	if err != nil {
		return LeaveForm{}, err
	}
	reason, err := core.ReasonOrDefault(sanitizeInput(form.Get("reason")))
	if err != nil {
		return LeaveForm{}, err
	}
	return LeaveForm{Range: r, Reason: reason}, nil
}

// ParseIDParam reads a positive integer route parameter.
func ParseIDParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidID, chi.URLParam(r, name))
	}
	return id, nil
}

// inputErrorMessage turns a validation error into text for a flash message.
func inputErrorMessage(err error) string {
	var de *core.DateError
	switch {
	case errors.As(err, &de):
		return fmt.Sprintf("Invalid %s %q. Use YYYY-MM-DD.", strings.ReplaceAll(de.Field, "_", " "), de.Value)
	case errors.Is(err, core.ErrLeaveRangeReversed):
		return "The end date is before the start date. Nothing was recorded."
	case errors.Is(err, core.ErrLeaveRangeTooLong):
		return fmt.Sprintf("A leave request can span at most %d days. Nothing was recorded.", core.MaxLeaveDays)
	case errors.Is(err, core.ErrInvalidAmount):
		return "Invalid amount. Enter a number such as 150 or 12.50."
	case errors.Is(err, core.ErrInvalidDirection):
		return "Choose whether the transaction is a credit or a debit."
	case errors.Is(err, core.ErrEmptyMemberNumber):
		return "A member number is required."
	case errors.Is(err, core.ErrEmptyMemberName):
		return "A member name is required."
	case errors.Is(err, core.ErrMemberNumberLength),
		errors.Is(err, core.ErrMemberNameLength),
		errors.Is(err, core.ErrDescriptionLength):
		s := err.Error()
		return strings.ToUpper(s[:1]) + s[1:] + "."
	default:
		return "Invalid input."
	}
}

// sanitizeInput trims and removes control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
