package importer

import (
	"errors"
	"testing"

	"tally/internal/core"
)

func TestCleanMerchant(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "embedded reference marker", in: "AMZN MKTP US*1234", want: "Amzn Mktp Us"},
		{name: "square prefix", in: "SQ *BLUE BOTTLE COFFEE", want: "Blue Bottle Coffee"},
		{name: "toast prefix", in: "TST* JOES DINER", want: "Joes Diner"},
		{name: "trailing store number", in: "TARGET 00004521", want: "Target"},
		{name: "hash reference", in: "COSTCO WHSE #0482", want: "Costco Whse"},
		{name: "duplicated leading token", in: "UBER UBER TRIP", want: "Uber Trip"},
		{name: "plain merchant untouched", in: "Trader Joes", want: "Trader Joes"},
		{name: "numeric brand survives", in: "7-ELEVEN 32881", want: "7-Eleven"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanMerchant(tt.in); got != tt.want {
				t.Errorf("CleanMerchant(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	mapping := ColumnMapping{Date: 0, Amount: 1, Merchant: 2}

	t.Run("expense row from the statement", func(t *testing.T) {
		rows, errs := Normalize([][]string{{"2024-03-05", "-45.00", "AMZN MKTP US*1234"}}, mapping)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if len(rows) != 1 {
			t.Fatalf("rows = %d, want 1", len(rows))
		}
		row := rows[0]
		if row.Merchant != "Amzn Mktp Us" {
			t.Errorf("merchant = %q", row.Merchant)
		}
		if row.OriginalMerchant != "AMZN MKTP US*1234" {
			t.Errorf("originalMerchant = %q", row.OriginalMerchant)
		}
		if row.Amount.String() != "45" {
			t.Errorf("amount = %s, want 45", row.Amount)
		}
		if row.IsIncome {
			t.Error("negative source amount classified as income")
		}
		if row.Date.ISO() != "2024-03-05" {
			t.Errorf("date = %s", row.Date.ISO())
		}
		if row.TempID == "" {
			t.Error("missing temp id")
		}
	})

	t.Run("us-style date and positive credit", func(t *testing.T) {
		rows, errs := Normalize([][]string{{"03/05/2024", "120.00", "ACME PAYROLL"}}, mapping)
		if len(errs) != 0 {
			t.Fatalf("unexpected errors: %v", errs)
		}
		if rows[0].Date.ISO() != "2024-03-05" {
			t.Errorf("date = %s", rows[0].Date.ISO())
		}
		if !rows[0].IsIncome {
			t.Error("positive source amount not classified as income")
		}
	})

	t.Run("bad rows surface per-row errors", func(t *testing.T) {
		records := [][]string{
			{"not-a-date", "10.00", "Target"},
			{"2024-03-05", "oops", "Target"},
			{"2024-03-05", "", "Target"},
			{"2024-03-05", "10.00", "Target"},
		}
		rows, errs := Normalize(records, mapping)
		if len(rows) != 1 {
			t.Fatalf("rows = %d, want 1", len(rows))
		}
		if len(errs) != 3 {
			t.Fatalf("errs = %d, want 3", len(errs))
		}
		if !errors.Is(errs[0], core.ErrUnparseableDate) {
			t.Errorf("errs[0] = %v, want ErrUnparseableDate", errs[0])
		}
		if !errors.Is(errs[1], core.ErrUnparseableAmount) {
			t.Errorf("errs[1] = %v, want ErrUnparseableAmount", errs[1])
		}
		if !errors.Is(errs[2], core.ErrMissingAmount) {
			t.Errorf("errs[2] = %v, want ErrMissingAmount", errs[2])
		}
	})
}

func TestFilterExclusions(t *testing.T) {
	rows := []core.ImportRow{
		{TempID: "a", Merchant: "Target", OriginalMerchant: "TARGET 4521"},
		{TempID: "b", Merchant: "Chase Autopay", OriginalMerchant: "CHASE AUTOPAY PPD"},
		{TempID: "c", Merchant: "Thank You Nails", OriginalMerchant: "THANK YOU NAILS"},
	}
	kept, excluded := FilterExclusions(rows, DefaultExclusionKeywords)
	if len(excluded) != 1 || excluded[0].TempID != "b" {
		t.Fatalf("excluded = %+v, want just row b", excluded)
	}
	// "Thank You Nails" must survive: the default list only excludes the
	// full confirmation phrase, not the bare words.
	if len(kept) != 2 {
		t.Fatalf("kept = %d, want 2", len(kept))
	}
}
