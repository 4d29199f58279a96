package importer

import (
	"strings"

	"tally/internal/core"
)

// DefaultExclusionKeywords flags card-autopay and transfer noise that must
// never double-enter the ledger. The list is policy, not a constant: config
// can replace it, since broad substrings like "payment" can false-positive
// on legitimate merchants.
var DefaultExclusionKeywords = []string{
	"online payment",
	"autopay",
	"auto pay",
	"payment - thank you",
	"payment thank you",
	"internal transfer",
	"transfer to",
	"transfer from",
	"directpay",
}

// FilterExclusions drops rows whose cleaned or original merchant text
// contains any exclusion keyword. Matching is case-insensitive. Dropped rows
// are returned for the review surface.
func FilterExclusions(rows []core.ImportRow, keywords []string) (kept, excluded []core.ImportRow) {
	for _, row := range rows {
		if matchesAnyKeyword(row, keywords) {
			excluded = append(excluded, row)
			continue
		}
		kept = append(kept, row)
	}
	return kept, excluded
}

func matchesAnyKeyword(row core.ImportRow, keywords []string) bool {
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
