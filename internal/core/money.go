// Package core provides the bookkeeping domain: members, their ledger
// transactions and leave days.
//
// This file contains money parsing and formatting. Amounts are held as
// integer cents; parsing goes through decimal so no float rounding leaks
// into stored balances.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// Money is a signed amount in cents.
type Money struct {
	Cents int64
}

// maxAmount keeps cents comfortably inside int64 after summing.
var maxAmount = decimal.New(1, 15)

// ParseAmount parses a non-negative decimal amount such as "12.34" or "12,34".
// A third fractional digit is rounded half-up.
//
// Examples:
//
//	ParseAmount("1000")   -> {100000}, nil
//	ParseAmount("12,345") -> {1235}, nil
//	ParseAmount("-1")     -> {}, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	m, err := ParseSignedAmount(s)
	if err != nil {
		return Money{}, err
	}
	if m.Cents < 0 {
		return Money{}, ErrInvalidAmount
	}
	return m, nil
}

// ParseSignedAmount is ParseAmount allowing a leading minus sign. An empty
// string parses as zero, which is what the member form expects for the
// opening balance.
func ParseSignedAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, nil
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }

func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }

func (m Money) Neg() Money { return Money{Cents: -m.Cents} }

func (m Money) IsZero() bool { return m.Cents == 0 }

func (m Money) IsNegative() bool { return m.Cents < 0 }

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats with two fixed decimals, e.g. "-300.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Abs drops the sign, used when rendering credit/debit columns.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return m.Neg()
	}
	return m
}

// Sum adds the amounts of the given transactions.
func Sum(txs []Transaction) Money {
	var total Money
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}
