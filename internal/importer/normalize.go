// Package importer normalizes, deduplicates, and classifies bank-statement
// rows before they enter the ledger.
//
// The stages are pure and composable: Normalize -> FilterExclusions ->
// IdentifyDuplicates -> IdentifyReturns. Rows that fail to parse are
// reported per row, never coerced or silently dropped.
package importer

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"tally/internal/core"
)

// ColumnMapping is the user-confirmed mapping from statement columns to the
// fields the reconciler needs. Indices are zero-based positions in each
// record.
type ColumnMapping struct {
	Date     int
	Amount   int
	Merchant int
}

// RowError ties a parse failure to its source row number (1-based, counting
// from the first data row).
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Normalize parses raw statement records into import rows: ISO dates,
// unsigned decimal amounts with isIncome from the source sign, and cleaned
// merchant text. Unparseable rows come back in errs and are excluded from
// the result.
func Normalize(records [][]string, mapping ColumnMapping) (rows []core.ImportRow, errs []RowError) {
	return NormalizeWith(records, mapping, CleanMerchant)
}

// NormalizeWith is Normalize with a caller-supplied merchant cleaner, so
// repeated merchants can be memoized across a large statement.
func NormalizeWith(records [][]string, mapping ColumnMapping, clean func(string) string) (rows []core.ImportRow, errs []RowError) {
	max := mapping.Date
	if mapping.Amount > max {
		max = mapping.Amount
	}
	if mapping.Merchant > max {
		max = mapping.Merchant
	}

	for i, rec := range records {
		rowNum := i + 1
		if len(rec) <= max {
			errs = append(errs, RowError{Row: rowNum, Err: fmt.Errorf("record has %d fields, mapping needs %d", len(rec), max+1)})
			continue
		}

		date, err := parseStatementDate(rec[mapping.Date])
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}
		amount, isCredit, err := core.ParseAmount(rec[mapping.Amount])
		if err != nil {
			errs = append(errs, RowError{Row: rowNum, Err: err})
			continue
		}

		original := strings.TrimSpace(rec[mapping.Merchant])
		rows = append(rows, core.ImportRow{
			TempID:           uuid.NewString(),
			Date:             date,
			Merchant:         clean(original),
			OriginalMerchant: original,
			Amount:           core.Round2(amount),
			IsIncome:         isCredit,
		})
	}
	return rows, errs
}

// statementDateLayouts are the date shapes banks actually export.
var statementDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"2006/01/02",
	"Jan 2, 2006",
	"02 Jan 2006",
}

func parseStatementDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, core.ErrMissingDate
	}
	for _, layout := range statementDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("%w: %q", core.ErrUnparseableDate, s)
}

var (
	// posPrefixRe matches processor prefixes like "SQ *", "TST* " at the
	// start of a merchant string.
	posPrefixRe = regexp.MustCompile(`^[A-Za-z0-9]{2,8} ?\* *`)

	// refTokenRe matches trailing store/reference tokens: "#1234", "4521",
	// "1234AB".
	refTokenRe = regexp.MustCompile(`^#?\d+[A-Za-z0-9]*$`)
)

// CleanMerchant strips processor noise from statement merchant text and
// title-cases the remainder: POS prefixes ("SQ *"), embedded reference
// markers ("AMZN MKTP US*1234"), trailing store numbers, and duplicated
// leading tokens.
func CleanMerchant(s string) string {
	s = strings.TrimSpace(s)
	s = posPrefixRe.ReplaceAllString(s, "")
	s = strings.NewReplacer("*", " ", "#", " #").Replace(s)

	tokens := strings.Fields(s)

	// trailing reference/store numbers
	for len(tokens) > 1 && refTokenRe.MatchString(tokens[len(tokens)-1]) {
		tokens = tokens[:len(tokens)-1]
	}

	// duplicated leading tokens ("UBER UBER TRIP")
	for len(tokens) > 1 && strings.EqualFold(tokens[0], tokens[1]) {
		tokens = tokens[1:]
	}

	for i, tok := range tokens {
		tokens[i] = titleCase(tok)
	}
	out := strings.Join(tokens, " ")
	if out == "" {
		return strings.TrimSpace(s)
	}
	return out
}

func titleCase(tok string) string {
	tok = strings.ToLower(tok)
	runes := []rune(tok)
	for i, r := range runes {
		if unicode.IsLetter(r) {
			runes[i] = unicode.ToUpper(r)
			break
		}
	}
	return string(runes)
}
