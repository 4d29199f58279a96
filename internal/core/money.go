// Package core holds the budget domain types and the money parsing rules
// shared by every engine.
//
// All monetary arithmetic runs on shopspring decimals; float64 never touches
// a balance. Amounts persist with two decimal places, rounded half-up.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// SplitTolerance is the allowed drift between a split transaction's
	// total and the sum of its legs.
	SplitTolerance = decimal.New(1, -2) // 0.01

	// DuplicateAmountTolerance bounds the amount difference for a statement
	// row to match an existing transaction.
	DuplicateAmountTolerance = decimal.New(5, -2) // 0.05
)

// ParseAmount parses a statement amount into an unsigned decimal and a
// credit flag (true when the source amount is positive).
//
// An empty field and a malformed one are distinct failures: the first is
// ErrMissingAmount, the second ErrUnparseableAmount. Neither is ever coerced
// to zero. Thousands separators and a leading currency symbol are accepted;
// a decimal comma is normalized to a dot when no dot is present.
func ParseAmount(s string) (amount decimal.Decimal, isCredit bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false, ErrMissingAmount
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, perr := decimal.NewFromString(s)
	if perr != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %q", ErrUnparseableAmount, s)
	}
	return d.Abs(), d.IsPositive(), nil
}

// Round2 rounds to two decimal places, half up.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinTolerance reports whether a and b differ by at most tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// Dec builds a decimal from its canonical string form. It panics on
// malformed input and is meant for constants and tests.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
