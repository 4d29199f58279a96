package importer

import (
	"testing"

	"tally/internal/core"
)

func existingTx(id, merchant, amount, date string) core.Transaction {
	d, _ := core.ParseDate(date)
	return core.Transaction{
		ID:            id,
		Date:          d,
		Merchant:      merchant,
		Amount:        core.Dec(amount),
		AccountID:     "checking",
		SubCategoryID: "sub-shopping",
		Kind:          core.KindSimple,
	}
}

func importRow(id, merchant, amount, date string, income bool) core.ImportRow {
	d, _ := core.ParseDate(date)
	return core.ImportRow{
		TempID:           id,
		Date:             d,
		Merchant:         CleanMerchant(merchant),
		OriginalMerchant: merchant,
		Amount:           core.Dec(amount),
		IsIncome:         income,
	}
}

func TestIdentifyDuplicates(t *testing.T) {
	existing := []core.Transaction{
		existingTx("e1", "Target", "50.00", "2024-03-01"),
	}

	tests := []struct {
		name string
		row  core.ImportRow
		dup  bool
	}{
		{
			name: "all three predicates hold",
			row:  importRow("r1", "Target 4521", "50.02", "2024-03-03", false),
			dup:  true,
		},
		{
			name: "amount outside tolerance",
			row:  importRow("r2", "Target 4521", "50.06", "2024-03-03", false),
			dup:  false,
		},
		{
			name: "date outside window",
			row:  importRow("r3", "Target 4521", "50.02", "2024-03-05", false),
			dup:  false,
		},
		{
			name: "merchant unrelated",
			row:  importRow("r4", "Walmart", "50.00", "2024-03-02", false),
			dup:  false,
		},
		{
			name: "date window is symmetric",
			row:  importRow("r5", "Target", "50.00", "2024-02-27", false),
			dup:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unique, review := IdentifyDuplicates([]core.ImportRow{tt.row}, existing)
			if tt.dup {
				if len(review) != 1 || len(unique) != 0 {
					t.Fatalf("want review bucket, got unique=%d review=%d", len(unique), len(review))
				}
				if review[0].Existing.ID != "e1" {
					t.Errorf("matched %s, want e1", review[0].Existing.ID)
				}
			} else {
				if len(unique) != 1 || len(review) != 0 {
					t.Fatalf("want unique, got unique=%d review=%d", len(unique), len(review))
				}
			}
		})
	}
}

func TestIdentifyDuplicatesFirstMatchWins(t *testing.T) {
	existing := []core.Transaction{
		existingTx("e1", "Target", "50.00", "2024-03-01"),
		existingTx("e2", "Target", "50.00", "2024-03-02"),
	}
	row := importRow("r1", "Target", "50.00", "2024-03-02", false)
	_, review := IdentifyDuplicates([]core.ImportRow{row}, existing)
	if len(review) != 1 {
		t.Fatalf("review = %d, want 1", len(review))
	}
	if review[0].Existing.ID != "e1" {
		t.Errorf("matched %s, want first match e1", review[0].Existing.ID)
	}
}

func TestFuzzyMerchantMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Target 4521", "Target", true},            // shared token
		{"TARGET", "target", true},                 // case-insensitive
		{"Tar-get", "target", true},                // punctuation-insensitive containment
		{"Amazon", "AMZN Mktp", false},             // no containment, no shared token
		{"Whole Foods Market", "Whole Foods", true},
		{"CVS", "CVS Pharmacy", true}, // containment works even when tokens are short
		{"", "Target", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			if got := fuzzyMerchantMatch(tt.a, tt.b); got != tt.want {
				t.Errorf("fuzzyMerchantMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
