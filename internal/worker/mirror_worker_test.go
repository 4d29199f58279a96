package worker

import (
	"context"
	"testing"

	"tally/internal/amqp"
	"tally/internal/core"
	sheetmem "tally/internal/sheets/memory"
	"tally/internal/storage"
)

func seedStore(t *testing.T, txs []core.Transaction) *storage.MemoryRepository {
	t.Helper()
	categories := []core.Category{
		{
			ID:   "cat-home",
			Name: "Home",
			SubCategories: []core.SubCategory{
				{ID: "sub-groceries", Name: "Groceries", Type: core.TypeExpense},
				{ID: "sub-repairs", Name: "Repairs", Type: core.TypeSinkingFund},
			},
		},
	}
	repo := storage.NewMemoryRepository()
	repo.Seed(core.BudgetState{
		Accounts:   []core.Account{{ID: "checking", Name: "Checking", Balance: core.Dec("1000")}},
		Categories: categories,
		Months: map[string]core.MonthEntry{
			"2024-02": {Key: "2024-02", Categories: categories},
		},
		SetupComplete: true,
	}, txs)
	return repo
}

func TestHandleCommitMessageMirrors(t *testing.T) {
	repo := seedStore(t, []core.Transaction{
		{
			ID: "t1", Date: core.NewDate(2024, 2, 10), Merchant: "Target",
			Amount: core.Dec("50"), AccountID: "checking",
			SubCategoryID: "sub-groceries", Kind: core.KindSimple,
		},
	})
	sheet := sheetmem.New()
	w := NewMirrorWorker(repo, sheet, 10)
	ctx := context.Background()

	msg := amqp.NewTransactionCommittedMessage("t1")
	if err := w.HandleCommitMessage(ctx, msg); err != nil {
		t.Fatalf("HandleCommitMessage: %v", err)
	}

	rows := sheet.Rows()
	if len(rows) != 1 {
		t.Fatalf("sheet rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row[0] != "2024-02-10" || row[1] != "Target" || row[2] != "-50.00" {
		t.Errorf("row = %v", row)
	}
	if row[3] != "Home" || row[4] != "Groceries" || row[5] != "Checking" {
		t.Errorf("name resolution = %v", row)
	}

	pending, _ := repo.PendingMirror(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("pending after mirror = %d", len(pending))
	}
}

func TestHandleCommitMessageSplitLegs(t *testing.T) {
	repo := seedStore(t, []core.Transaction{
		{
			ID: "t2", Date: core.NewDate(2024, 2, 12), Merchant: "Costco",
			Amount: core.Dec("150"), Kind: core.KindSplit,
			Splits: []core.Split{
				{SubCategoryID: "sub-groceries", Amount: core.Dec("100"), AccountID: "checking"},
				{SubCategoryID: "sub-repairs", Amount: core.Dec("50"), AccountID: "checking"},
			},
		},
	})
	sheet := sheetmem.New()
	w := NewMirrorWorker(repo, sheet, 10)

	msg := amqp.NewTransactionCommittedMessage("t2")
	if err := w.HandleCommitMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleCommitMessage: %v", err)
	}

	rows := sheet.Rows()
	if len(rows) != 2 {
		t.Fatalf("split mirrored as %d rows, want 2", len(rows))
	}
	if rows[0][4] != "Groceries" || rows[1][4] != "Repairs" {
		t.Errorf("legs = %v", rows)
	}
}

func TestHandleCommitMessageMissingTransaction(t *testing.T) {
	repo := seedStore(t, nil)
	sheet := sheetmem.New()
	w := NewMirrorWorker(repo, sheet, 10)

	msg := amqp.NewTransactionCommittedMessage("gone")
	if err := w.HandleCommitMessage(context.Background(), msg); err != nil {
		t.Errorf("missing transaction should be skipped, got %v", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Errorf("sheet rows = %d, want 0", len(sheet.Rows()))
	}
}

func TestProcessPendingRespectsBatchSize(t *testing.T) {
	txs := []core.Transaction{
		{ID: "t1", Date: core.NewDate(2024, 2, 10), Merchant: "A", Amount: core.Dec("1"), AccountID: "checking", SubCategoryID: "sub-groceries", Kind: core.KindSimple},
		{ID: "t2", Date: core.NewDate(2024, 2, 11), Merchant: "B", Amount: core.Dec("2"), AccountID: "checking", SubCategoryID: "sub-groceries", Kind: core.KindSimple},
		{ID: "t3", Date: core.NewDate(2024, 2, 12), Merchant: "C", Amount: core.Dec("3"), AccountID: "checking", SubCategoryID: "sub-groceries", Kind: core.KindSimple},
	}
	repo := seedStore(t, txs)
	sheet := sheetmem.New()
	w := NewMirrorWorker(repo, sheet, 2)
	ctx := context.Background()

	if err := w.ProcessPending(ctx); err != nil {
		t.Fatalf("ProcessPending: %v", err)
	}
	if len(sheet.Rows()) != 2 {
		t.Errorf("first sweep mirrored %d rows, want 2", len(sheet.Rows()))
	}

	if err := w.StartupBacklogCheck(ctx); err != nil {
		t.Fatalf("StartupBacklogCheck: %v", err)
	}
	if len(sheet.Rows()) != 3 {
		t.Errorf("after backlog drain = %d rows, want 3", len(sheet.Rows()))
	}
	pending, _ := repo.PendingMirror(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}
