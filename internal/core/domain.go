package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

const (
	DefaultTransactionDescription = "General Transaction"
	OpeningBalanceDescription     = "Opening Balance"
	DefaultLeaveReason            = "Personal"

	maxNumberLength      = 20
	maxNameLength        = 100
	maxDescriptionLength = 200
)

type (
	// Direction tells whether a posted amount adds to or subtracts from a balance.
	Direction string

	Member struct {
		ID      int64
		Number  string // external member number, unique
		Name    string
		Balance Money
	}

	// Transaction is an immutable ledger entry. Amount carries the sign.
	Transaction struct {
		ID          int64
		MemberID    int64
		Amount      Money
		Description string
		CreatedAt   time.Time
	}

	Leave struct {
		ID       int64
		MemberID int64
		Date     Date
		Reason   string
	}
)

var (
	ErrInvalidDirection   = errors.New("invalid transaction direction")
	ErrEmptyMemberNumber  = errors.New("empty member number")
	ErrEmptyMemberName    = errors.New("empty member name")
	ErrMemberNumberLength = errors.New("member number too long (max 20 characters)")
	ErrMemberNameLength   = errors.New("member name too long (max 100 characters)")
	ErrDescriptionLength  = errors.New("description too long (max 200 characters)")
)

// ParseDirection accepts the form values used by the member page.
// "add" and "subtract" are kept for older bookmarks and scripts.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "credit", "add":
		return Credit, nil
	case "debit", "subtract":
		return Debit, nil
	default:
		return "", ErrInvalidDirection
	}
}

// Signed bakes the direction into the amount.
func (d Direction) Signed(amount Money) Money {
	if d == Debit {
		return amount.Neg()
	}
	return amount
}

func (m Member) Validate() error {
	number := strings.TrimSpace(m.Number)
	if number == "" {
		return ErrEmptyMemberNumber
	}
	if len(number) > maxNumberLength {
		return ErrMemberNumberLength
	}
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return ErrEmptyMemberName
	}
	if len(name) > maxNameLength {
		return ErrMemberNameLength
	}
	return nil
}

// DescriptionOrDefault returns the trimmed description, falling back to
// DefaultTransactionDescription when it is blank.
func DescriptionOrDefault(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return DefaultTransactionDescription, nil
	}
	if len(desc) > maxDescriptionLength {
		return "", ErrDescriptionLength
	}
	return desc, nil
}

// ReasonOrDefault is DescriptionOrDefault for leave reasons.
func ReasonOrDefault(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultLeaveReason, nil
	}
	if len(reason) > maxDescriptionLength {
		return "", ErrDescriptionLength
	}
	return reason, nil
}
