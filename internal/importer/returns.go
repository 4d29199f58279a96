package importer

import (
	"sort"
	"strings"

	"tally/internal/core"
)

// DefaultPayrollKeywords mark income rows that are paychecks rather than
// return candidates. Configurable for the same reason as the exclusion list.
var DefaultPayrollKeywords = []string{
	"payroll",
	"direct dep",
	"direct deposit",
	"salary",
	"dir dep",
	"ach credit",
}

const noMatchNote = "return with no matching expense; needs manual categorization"

// IdentifyReturns classifies income rows that are not payroll as returns.
// Resolution runs in priority order: the most recent qualifying existing
// expense (category inherited), else the most recent qualifying expense row
// in the same batch (linked by parent id so a later category assignment
// cascades), else a tagged return with a no-match note. A qualifying expense
// fuzzy-matches the merchant, is dated on or before the return, and is at
// least as large. Expense rows pass through untouched.
func IdentifyReturns(rows []core.ImportRow, existing []core.Transaction, payrollKeywords []string) []core.ImportRow {
	expenses := expensesNewestFirst(existing)

	out := make([]core.ImportRow, len(rows))
	copy(out, rows)

	for i, row := range out {
		if !row.IsIncome || isPayroll(row, payrollKeywords) {
			continue
		}

		if tx, ok := matchExistingExpense(row, expenses); ok {
			out[i].IsReturn = true
			out[i].SubCategoryID = tx.SubCategoryID
			continue
		}

		if parent, ok := matchBatchExpense(row, out); ok {
			out[i].IsReturn = true
			out[i].LinkedParentID = parent.TempID
			continue
		}

		out[i].IsReturn = true
		out[i].Note = noMatchNote
	}
	return out
}

func isPayroll(row core.ImportRow, keywords []string) bool {
	cleaned := strings.ToLower(row.Merchant)
	original := strings.ToLower(row.OriginalMerchant)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(cleaned, kw) || strings.Contains(original, kw) {
			return true
		}
	}
	return false
}

func expensesNewestFirst(existing []core.Transaction) []core.Transaction {
	var expenses []core.Transaction
	for _, tx := range existing {
		if !tx.IsIncome && tx.Kind == core.KindSimple {
			expenses = append(expenses, tx)
		}
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		return expenses[i].Date.After(expenses[j].Date.Time)
	})
	return expenses
}

func matchExistingExpense(row core.ImportRow, expenses []core.Transaction) (core.Transaction, bool) {
	for _, tx := range expenses {
		if tx.Date.After(row.Date.Time) {
			continue
		}
		if tx.Amount.LessThan(row.Amount) {
			continue
		}
		if !merchantsMatch(row, tx.Merchant) {
			continue
		}
		return tx, true
	}
	return core.Transaction{}, false
}

func matchBatchExpense(row core.ImportRow, batch []core.ImportRow) (core.ImportRow, bool) {
	best := core.ImportRow{}
	found := false
	for _, other := range batch {
		if other.TempID == row.TempID || other.IsIncome {
			continue
		}
		if other.Date.After(row.Date.Time) {
			continue
		}
		if other.Amount.LessThan(row.Amount) {
			continue
		}
		if !fuzzyMerchantMatch(row.Merchant, other.Merchant) &&
			!fuzzyMerchantMatch(row.OriginalMerchant, other.OriginalMerchant) {
			continue
		}
		if !found || other.Date.After(best.Date.Time) {
			best = other
			found = true
		}
	}
	return best, found
}
