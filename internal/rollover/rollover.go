// Package rollover carries sinking-fund balances forward and resets monthly
// budgets at month boundaries.
package rollover

import (
	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Due reports whether a rollover into the month holding today is needed:
// the month key is absent from stored monthly data and setup is complete.
func Due(state core.BudgetState, today core.Date) (targetKey string, ok bool) {
	key := today.MonthKey()
	if !state.SetupComplete {
		return "", false
	}
	if _, exists := state.Months[key]; exists {
		return "", false
	}
	return key, true
}

// CreateNewMonth seeds the target month from the prior one: category
// structure is carried (transaction history is not), sinking funds roll
// their balance forward by budgeted minus spent (unclamped, may go
// negative), and plain expense budgets reset to zero. Debt-linked and
// sinking-fund budgeted amounts persist as standing commitments.
func CreateNewMonth(prior core.MonthEntry, priorTxs []core.Transaction, targetKey string) core.MonthEntry {
	spent := SpentBySubCategory(priorTxs)

	next := core.MonthEntry{
		Key:                 targetKey,
		IncomeSource1:       prior.IncomeSource1,
		IncomeSource2:       prior.IncomeSource2,
		SavingsGoal:         prior.SavingsGoal,
		Categories:          make([]core.Category, 0, len(prior.Categories)),
		SinkingFundBalances: make(map[string]decimal.Decimal),
	}

	for _, cat := range prior.Categories {
		nc := core.Category{ID: cat.ID, Name: cat.Name}
		for _, sc := range cat.SubCategories {
			nsc := sc
			switch {
			case sc.Type == core.TypeSinkingFund:
				carried := prior.SinkingFundBalances[sc.ID]
				next.SinkingFundBalances[sc.ID] = core.Round2(carried.Add(sc.Budgeted).Sub(spent[sc.ID]))
			case sc.LinkedDebtID != "":
				// standing commitment, budgeted untouched
			default:
				nsc.Budgeted = decimal.Zero
			}
			nc.SubCategories = append(nc.SubCategories, nsc)
		}
		next.Categories = append(next.Categories, nc)
	}
	return next
}

// SpentBySubCategory sums non-income transaction amounts per subcategory
// for a month's transactions, split legs counted against their own
// subcategory.
func SpentBySubCategory(txs []core.Transaction) map[string]decimal.Decimal {
	spent := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.IsIncome {
			continue
		}
		if tx.Kind == core.KindSplit {
			for _, sp := range tx.Splits {
				spent[sp.SubCategoryID] = spent[sp.SubCategoryID].Add(sp.Amount)
			}
			continue
		}
		spent[tx.SubCategoryID] = spent[tx.SubCategoryID].Add(tx.Amount)
	}
	return spent
}
