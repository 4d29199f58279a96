package importer

import (
	"strings"

	"tally/internal/core"
)

// ResolutionKind is the explicit user decision for a duplicate match.
type ResolutionKind string

const (
	ReplaceExisting ResolutionKind = "replace_existing"
	KeepBoth        ResolutionKind = "keep_both"
	KeepOriginal    ResolutionKind = "keep_original"
)

// DuplicateMatch pairs an import row with the existing transaction it
// appears to duplicate. Matches sit in a review bucket until the user picks
// a resolution.
type DuplicateMatch struct {
	Row        core.ImportRow
	Existing   core.Transaction
	Resolution ResolutionKind
}

// IdentifyDuplicates splits rows into unique ones and review-bucket matches.
// A row duplicates an existing transaction when all three predicates hold:
// amount within 0.05, dates within 3 days, and a fuzzy merchant match. The
// first matching transaction wins per row.
func IdentifyDuplicates(rows []core.ImportRow, existing []core.Transaction) (unique []core.ImportRow, review []DuplicateMatch) {
	for _, row := range rows {
		match, found := findDuplicate(row, existing)
		if found {
			review = append(review, DuplicateMatch{Row: row, Existing: match})
			continue
		}
		unique = append(unique, row)
	}
	return unique, review
}

func findDuplicate(row core.ImportRow, existing []core.Transaction) (core.Transaction, bool) {
	for _, tx := range existing {
		if !core.WithinTolerance(row.Amount, tx.Amount, core.DuplicateAmountTolerance) {
			continue
		}
		days := row.Date.DaysSince(tx.Date)
		if days < 0 {
			days = -days
		}
		if days > 3 {
			continue
		}
		if !merchantsMatch(row, tx.Merchant) {
			continue
		}
		return tx, true
	}
	return core.Transaction{}, false
}

func merchantsMatch(row core.ImportRow, merchant string) bool {
	return fuzzyMerchantMatch(row.Merchant, merchant) ||
		fuzzyMerchantMatch(row.OriginalMerchant, merchant)
}

// fuzzyMerchantMatch is case- and punctuation-insensitive: containment in
// either direction, or a shared alphanumeric token longer than two
// characters.
func fuzzyMerchantMatch(a, b string) bool {
	na, nb := squash(a), squash(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	bTokens := make(map[string]bool)
	for _, tok := range alnumTokens(b) {
		if len(tok) > 2 {
			bTokens[tok] = true
		}
	}
	for _, tok := range alnumTokens(a) {
		if len(tok) > 2 && bTokens[tok] {
			return true
		}
	}
	return false
}

// squash lowercases and strips everything non-alphanumeric.
func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func alnumTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}
