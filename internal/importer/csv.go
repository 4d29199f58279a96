package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

// Statement is a parsed bank CSV: the header row and the raw data records,
// ready for a user-confirmed column mapping.
type Statement struct {
	Header  []string
	Records [][]string
}

// ParseStatement reads a bank CSV with a header row. Ragged rows are
// tolerated; the mapping bounds are enforced later during Normalize.
func ParseStatement(r io.Reader) (Statement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return Statement{}, fmt.Errorf("read statement csv: %w", err)
	}
	if len(all) == 0 {
		return Statement{}, fmt.Errorf("statement csv is empty")
	}
	return Statement{Header: all[0], Records: all[1:]}, nil
}

// GuessColumnMapping matches header names against the common labels banks
// use. The result still needs user confirmation.
func GuessColumnMapping(header []string) (ColumnMapping, bool) {
	m := ColumnMapping{Date: -1, Amount: -1, Merchant: -1}
	for i, h := range header {
		switch key := strings.ToLower(strings.TrimSpace(h)); {
		case m.Date < 0 && strings.Contains(key, "date"):
			m.Date = i
		case m.Amount < 0 && strings.Contains(key, "amount"):
			m.Amount = i
		case m.Merchant < 0 && (strings.Contains(key, "merchant") ||
			strings.Contains(key, "description") || strings.Contains(key, "payee")):
			m.Merchant = i
		}
	}
	return m, m.Date >= 0 && m.Amount >= 0 && m.Merchant >= 0
}

// exportHeader is the fixed column order of the export format.
var exportHeader = []string{
	"Date", "Merchant", "Amount", "Category", "Sub-Category",
	"Account", "Notes", "PrincipalPaid", "InterestPaid",
}

// textColumns marks which export columns are quoted text; the rest are bare
// numbers.
var textColumns = map[int]bool{0: true, 1: true, 3: true, 4: true, 5: true, 6: true}

// ExportHeader returns the fixed export column order.
func ExportHeader() []string {
	return append([]string(nil), exportHeader...)
}

// ExportRows returns the export-format field values without CSV quoting.
// Split transactions produce one row per leg so every row carries a single
// category and account. The sheet mirror appends these same rows.
func ExportRows(txs []core.Transaction, state core.BudgetState) [][]string {
	names := newNameIndex(state)
	var rows [][]string
	for _, tx := range txs {
		if tx.Kind == core.KindSplit {
			for _, sp := range tx.Splits {
				rows = append(rows, exportRow(tx.Date, tx.Merchant, sp.Amount,
					sp.SubCategoryID, sp.AccountID, sp.Notes,
					sp.PrincipalPaid, sp.InterestPaid, false, names))
			}
			continue
		}
		rows = append(rows, exportRow(tx.Date, tx.Merchant, tx.Amount,
			tx.SubCategoryID, tx.AccountID, tx.Notes,
			tx.PrincipalPaid, tx.InterestPaid, tx.IsIncome, names))
	}
	return rows
}

// Export writes transactions in the fixed-order CSV export format: text
// fields quoted, numeric fields bare.
func Export(w io.Writer, txs []core.Transaction, state core.BudgetState) error {
	if _, err := fmt.Fprintln(w, strings.Join(exportHeader, ",")); err != nil {
		return err
	}
	for _, row := range ExportRows(txs, state) {
		fields := make([]string, len(row))
		for i, v := range row {
			if textColumns[i] {
				fields[i] = csvQuote(v)
			} else {
				fields[i] = v
			}
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, ",")); err != nil {
			return err
		}
	}
	return nil
}

type nameIndex struct {
	accounts      map[string]string
	subCategories map[string]string
	categories    map[string]string // subcategory id -> parent category name
}

func newNameIndex(state core.BudgetState) nameIndex {
	idx := nameIndex{
		accounts:      make(map[string]string),
		subCategories: make(map[string]string),
		categories:    make(map[string]string),
	}
	for _, a := range state.Accounts {
		idx.accounts[a.ID] = a.Name
	}
	for _, c := range state.Categories {
		for _, sc := range c.SubCategories {
			idx.subCategories[sc.ID] = sc.Name
			idx.categories[sc.ID] = c.Name
		}
	}
	return idx
}

func exportRow(date core.Date, merchant string, amount decimal.Decimal,
	subCategoryID, accountID, notes string, principal, interest decimal.Decimal,
	isIncome bool, names nameIndex) []string {

	// same sign convention as import: positive = credit/income
	signed := amount
	if !isIncome {
		signed = amount.Neg()
	}
	return []string{
		date.ISO(),
		merchant,
		signed.StringFixed(2),
		names.categories[subCategoryID],
		names.subCategories[subCategoryID],
		names.accounts[accountID],
		notes,
		principal.StringFixed(2),
		interest.StringFixed(2),
	}
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
