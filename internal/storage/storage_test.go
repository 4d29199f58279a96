package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"tally/internal/core"
)

func seedWrites() []core.Write {
	month := core.MonthEntry{
		Key:           "2024-02",
		IncomeSource1: core.Dec("3000"),
		SavingsGoal:   core.Dec("500"),
		Categories: []core.Category{
			{
				ID:   "cat-home",
				Name: "Home",
				SubCategories: []core.SubCategory{
					{ID: "sub-groceries", Name: "Groceries", Type: core.TypeExpense, Budgeted: core.Dec("400")},
					{ID: "sub-repairs", Name: "Repairs", Type: core.TypeSinkingFund, Budgeted: core.Dec("100")},
					{ID: "sub-card", Name: "Card", Type: core.TypeExpense, Budgeted: core.Dec("250"), LinkedDebtID: "card"},
				},
			},
		},
		SinkingFundBalances: map[string]decimal.Decimal{"sub-repairs": core.Dec("320")},
	}

	return []core.Write{
		core.PutAccount(core.Account{ID: "checking", Name: "Checking", Balance: core.Dec("2000")}),
		core.PutDebt(core.Debt{
			ID: "card", Name: "Card", AmountOwed: core.Dec("1000"),
			StartingAmount: core.Dec("1500"), InterestRate: core.Dec("12"),
			Compounding: core.CompoundMonthly, MonthlyPayment: core.Dec("100"),
			LastCompounded: core.NewDate(2024, 2, 1), PaymentDueDay: 15,
		}),
		core.PutMonth(month),
		core.PutRecurring(core.RecurringItem{
			ID: "r1", Merchant: "Utility Co", Amount: core.Dec("80"),
			DayOfMonth: 10, SubCategoryID: "sub-groceries",
		}),
		core.PutTransaction(core.Transaction{
			ID: "t1", Date: core.NewDate(2024, 2, 10), Merchant: "Target",
			Amount: core.Dec("50"), AccountID: "checking",
			SubCategoryID: "sub-groceries", Kind: core.KindSimple,
		}),
		core.PutTransaction(core.Transaction{
			ID: "t2", Date: core.NewDate(2024, 2, 12), Merchant: "Costco",
			Amount: core.Dec("150"), Kind: core.KindSplit,
			Splits: []core.Split{
				{SubCategoryID: "sub-groceries", Amount: core.Dec("100"), AccountID: "checking"},
				{SubCategoryID: "sub-repairs", Amount: core.Dec("50"), AccountID: "checking"},
			},
		}),
		core.PutTransaction(core.Transaction{
			ID: "t3", Date: core.NewDate(2024, 3, 1), Merchant: "Target",
			Amount: core.Dec("20"), AccountID: "checking",
			SubCategoryID: "sub-groceries", Kind: core.KindSimple,
		}),
		core.CompleteSetup(),
	}
}

func verifyRoundTrip(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	if err := repo.SaveBatch(ctx, seedWrites()); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	state, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !state.SetupComplete {
		t.Error("setup not marked complete")
	}
	if len(state.Accounts) != 1 || !state.Accounts[0].Balance.Equal(core.Dec("2000")) {
		t.Errorf("accounts = %+v", state.Accounts)
	}
	debt, ok := state.DebtByID("card")
	if !ok || !debt.AmountOwed.Equal(core.Dec("1000")) || debt.Compounding != core.CompoundMonthly {
		t.Errorf("debt = %+v", debt)
	}
	if debt.LastCompounded.ISO() != "2024-02-01" {
		t.Errorf("lastCompounded = %s", debt.LastCompounded.ISO())
	}
	month, ok := state.Months["2024-02"]
	if !ok {
		t.Fatal("month 2024-02 missing")
	}
	if got := month.SinkingFundBalances["sub-repairs"]; !got.Equal(core.Dec("320")) {
		t.Errorf("sinking balance = %s", got)
	}
	sc, ok := state.SubCategoryByID("sub-card")
	if !ok || sc.LinkedDebtID != "card" {
		t.Errorf("template subcategory = %+v ok=%v", sc, ok)
	}
	if len(state.Recurring) != 1 || state.Recurring[0].Merchant != "Utility Co" {
		t.Errorf("recurring = %+v", state.Recurring)
	}

	feb, err := repo.Transactions(ctx, "2024-02")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(feb) != 2 {
		t.Fatalf("feb transactions = %d, want 2", len(feb))
	}
	if feb[1].Kind != core.KindSplit || len(feb[1].Splits) != 2 {
		t.Errorf("split not restored: %+v", feb[1])
	}
	if !feb[1].Splits[1].Amount.Equal(core.Dec("50")) {
		t.Errorf("split amount = %s", feb[1].Splits[1].Amount)
	}

	all, err := repo.Transactions(ctx, "")
	if err != nil {
		t.Fatalf("Transactions all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all transactions = %d, want 3", len(all))
	}

	if err := repo.SaveBatch(ctx, []core.Write{core.DeleteTransaction("t2")}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	feb, err = repo.Transactions(ctx, "2024-02")
	if err != nil {
		t.Fatalf("Transactions after delete: %v", err)
	}
	if len(feb) != 1 || feb[0].ID != "t1" {
		t.Errorf("after delete = %+v", feb)
	}
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	verifyRoundTrip(t, repo)
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	verifyRoundTrip(t, NewMemoryRepository())
}

func TestSubscribeFiresAfterCommit(t *testing.T) {
	repo := NewMemoryRepository()
	var seen [][]core.Write
	repo.Subscribe(func(ws []core.Write) { seen = append(seen, ws) })

	writes := []core.Write{core.PutAccount(core.Account{ID: "a", Name: "A"})}
	if err := repo.SaveBatch(context.Background(), writes); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if len(seen) != 1 || len(seen[0]) != 1 || seen[0][0].Kind != core.WritePutAccount {
		t.Errorf("subscriber saw %+v", seen)
	}
}

func TestMirrorTracking(t *testing.T) {
	repos := map[string]Repository{
		"memory": NewMemoryRepository(),
	}
	sqlite, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer sqlite.Close()
	repos["sqlite"] = sqlite

	type mirrorStore interface {
		PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error)
		MarkMirrored(ctx context.Context, id string) error
	}

	for name, repo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ms := repo.(mirrorStore)

			if err := repo.SaveBatch(ctx, seedWrites()); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}

			got, err := repo.Transaction(ctx, "t1")
			if err != nil || got.Merchant != "Target" {
				t.Fatalf("Transaction(t1) = %+v, %v", got, err)
			}
			if _, err := repo.Transaction(ctx, "nope"); err != ErrNotFound {
				t.Errorf("missing id error = %v, want ErrNotFound", err)
			}

			pending, err := ms.PendingMirror(ctx, 10)
			if err != nil {
				t.Fatalf("PendingMirror: %v", err)
			}
			if len(pending) != 3 {
				t.Fatalf("pending = %d, want 3", len(pending))
			}

			if err := ms.MarkMirrored(ctx, "t1"); err != nil {
				t.Fatalf("MarkMirrored: %v", err)
			}
			pending, err = ms.PendingMirror(ctx, 10)
			if err != nil {
				t.Fatalf("PendingMirror: %v", err)
			}
			if len(pending) != 2 {
				t.Errorf("pending after mark = %d, want 2", len(pending))
			}

			// rewriting a transaction queues it for mirroring again
			tx, _ := repo.Transaction(ctx, "t1")
			tx.Amount = core.Dec("60")
			if err := repo.SaveBatch(ctx, []core.Write{core.PutTransaction(tx)}); err != nil {
				t.Fatalf("SaveBatch: %v", err)
			}
			pending, _ = ms.PendingMirror(ctx, 10)
			if len(pending) != 3 {
				t.Errorf("pending after rewrite = %d, want 3", len(pending))
			}
		})
	}
}

func TestSQLitePutTransactionIsUpsert(t *testing.T) {
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budget.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	ctx := context.Background()

	tx := core.Transaction{
		ID: "t1", Date: core.NewDate(2024, 2, 10), Merchant: "Target",
		Amount: core.Dec("50"), AccountID: "checking",
		SubCategoryID: "sub-groceries", Kind: core.KindSimple,
	}
	if err := repo.SaveBatch(ctx, []core.Write{core.PutTransaction(tx)}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	tx.Amount = core.Dec("55.25")
	if err := repo.SaveBatch(ctx, []core.Write{core.PutTransaction(tx)}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := repo.Transactions(ctx, "2024-02")
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(got) != 1 || !got[0].Amount.Equal(core.Dec("55.25")) {
		t.Errorf("after upsert = %+v", got)
	}
}
