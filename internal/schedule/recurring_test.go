package schedule

import (
	"testing"

	"tally/internal/core"
)

func fixedItem(id string, day int, amount string) core.RecurringItem {
	return core.RecurringItem{
		ID: id, Merchant: "Utility Co", Amount: core.Dec(amount),
		DayOfMonth: day, SubCategoryID: "sub-utilities",
	}
}

func TestDueEmissions(t *testing.T) {
	today := core.NewDate(2024, 3, 15)

	tests := []struct {
		name string
		item core.RecurringItem
		want int
	}{
		{name: "due day reached", item: fixedItem("r1", 15, "80"), want: 1},
		{name: "due day passed", item: fixedItem("r2", 10, "80"), want: 1},
		{name: "not yet due", item: fixedItem("r3", 20, "80"), want: 0},
		{name: "already paid this month", item: func() core.RecurringItem {
			it := fixedItem("r4", 10, "80")
			it.LastPaidMonth = "2024-03"
			return it
		}(), want: 0},
		{name: "zero fixed amount not payable", item: fixedItem("r5", 10, "0"), want: 0},
		{name: "variable without pending not payable", item: func() core.RecurringItem {
			it := fixedItem("r6", 10, "80")
			it.IsVariable = true
			return it
		}(), want: 0},
		{name: "variable with staged pending", item: func() core.RecurringItem {
			it := fixedItem("r7", 10, "0")
			it.IsVariable = true
			it.PendingAmount = core.Dec("63.20")
			return it
		}(), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DueEmissions([]core.RecurringItem{tt.item}, today, "checking")
			if len(got) != tt.want {
				t.Fatalf("emissions = %d, want %d", len(got), tt.want)
			}
			if tt.want == 0 {
				return
			}
			e := got[0]
			if e.Item.LastPaidMonth != "2024-03" {
				t.Errorf("lastPaidMonth = %q, want 2024-03", e.Item.LastPaidMonth)
			}
			if !e.Item.PendingAmount.IsZero() {
				t.Errorf("pendingAmount = %s, want cleared", e.Item.PendingAmount)
			}
			if e.Tx.AccountID != "checking" || e.Tx.IsIncome {
				t.Errorf("tx = %+v, want expense on checking", e.Tx)
			}
			if e.Tx.Date.ISO() != "2024-03-15" {
				t.Errorf("tx date = %s, want today", e.Tx.Date.ISO())
			}
			if tt.item.IsVariable && !e.Tx.Amount.Equal(tt.item.PendingAmount) {
				t.Errorf("variable amount = %s, want %s", e.Tx.Amount, tt.item.PendingAmount)
			}
		})
	}
}

func TestDueEmissionsIdempotentPerMonth(t *testing.T) {
	today := core.NewDate(2024, 3, 15)
	items := []core.RecurringItem{fixedItem("r1", 10, "80")}

	first := DueEmissions(items, today, "checking")
	if len(first) != 1 {
		t.Fatalf("first pass = %d, want 1", len(first))
	}
	second := DueEmissions([]core.RecurringItem{first[0].Item}, today.AddDays(5), "checking")
	if len(second) != 0 {
		t.Fatal("re-evaluation within the month re-emitted")
	}
	// next month it fires again
	third := DueEmissions([]core.RecurringItem{first[0].Item}, core.NewDate(2024, 4, 10), "checking")
	if len(third) != 1 {
		t.Fatal("next month did not emit")
	}
}

func TestDueEmissionsClampsShortMonths(t *testing.T) {
	// day 31 in February clamps to the 29th (2024 is a leap year)
	items := []core.RecurringItem{fixedItem("r1", 31, "80")}
	if got := DueEmissions(items, core.NewDate(2024, 2, 29), "checking"); len(got) != 1 {
		t.Fatal("clamped due day did not fire on last day of short month")
	}
	if got := DueEmissions(items, core.NewDate(2024, 2, 28), "checking"); len(got) != 0 {
		t.Fatal("fired before clamped due day")
	}
}
