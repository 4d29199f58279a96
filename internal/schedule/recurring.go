// Package schedule emits transactions for due recurring bills and predicts
// upcoming income dates.
package schedule

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Emission pairs the expense transaction for a due recurring bill with the
// item state after emission (lastPaidMonth stamped, pending amount cleared).
type Emission struct {
	Tx   core.Transaction
	Item core.RecurringItem
}

// DueEmissions finds recurring items due today and builds their expense
// transactions against the default spending account. An item already paid
// this month is skipped, so re-evaluating within the month never re-emits.
// Due days past the end of a short month clamp to its last day.
func DueEmissions(items []core.RecurringItem, today core.Date, defaultAccountID string) []Emission {
	monthKey := today.MonthKey()
	var out []Emission

	for _, item := range items {
		if item.LastPaidMonth == monthKey {
			continue
		}

		targetDay := item.DayOfMonth
		if last := core.LastDayOfMonth(today.Year(), today.Month()); targetDay > last {
			targetDay = last
		}
		if today.Day() < targetDay {
			continue
		}

		amount := item.Amount
		if item.IsVariable {
			amount = item.PendingAmount
		}
		if !amount.IsPositive() {
			continue
		}

		paid := item
		paid.LastPaidMonth = monthKey
		paid.PendingAmount = decimal.Zero

		out = append(out, Emission{
			Tx: core.Transaction{
				ID:            uuid.NewString(),
				Date:          today,
				Merchant:      item.Merchant,
				Amount:        amount,
				AccountID:     defaultAccountID,
				SubCategoryID: item.SubCategoryID,
				Kind:          core.KindSimple,
			},
			Item: paid,
		})
	}
	return out
}
