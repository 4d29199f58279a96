package ledger

import (
	"errors"
	"testing"

	"tally/internal/core"
)

func testBudget() core.BudgetState {
	return core.BudgetState{
		Accounts: []core.Account{
			{ID: "checking", Name: "Checking", Balance: core.Dec("2000")},
			{ID: "savings", Name: "Savings", Balance: core.Dec("5000")},
		},
		Debts: []core.Debt{
			{
				ID:           "card",
				Name:         "Card",
				AmountOwed:   core.Dec("1000"),
				InterestRate: core.Dec("12"),
				Compounding:  core.CompoundMonthly,
			},
		},
		Categories: []core.Category{
			{
				ID:   "cat-bills",
				Name: "Bills",
				SubCategories: []core.SubCategory{
					{ID: "sub-rent", Name: "Rent", Type: core.TypeExpense},
					{ID: "sub-card", Name: "Card Payment", Type: core.TypeExpense, LinkedDebtID: "card"},
					{ID: "sub-groceries", Name: "Groceries", Type: core.TypeExpense},
				},
			},
		},
	}
}

func simpleTx(id, account, subcat, amount string, income bool) core.Transaction {
	return core.Transaction{
		ID:            id,
		Date:          core.NewDate(2024, 3, 10),
		Merchant:      "Merchant",
		Amount:        core.Dec(amount),
		AccountID:     account,
		SubCategoryID: subcat,
		IsIncome:      income,
		Kind:          core.KindSimple,
	}
}

func TestApplySimpleExpenseAndIncome(t *testing.T) {
	s := NewState(testBudget())

	m, err := Apply(simpleTx("t1", "checking", "sub-groceries", "45.50", false), s)
	if err != nil {
		t.Fatalf("apply expense: %v", err)
	}
	if got := m.State.Accounts["checking"].Balance.String(); got != "1954.5" {
		t.Errorf("checking after expense = %s, want 1954.5", got)
	}

	m2, err := Apply(simpleTx("t2", "checking", "", "1000", true), m.State)
	if err != nil {
		t.Fatalf("apply income: %v", err)
	}
	if got := m2.State.Accounts["checking"].Balance.String(); got != "2954.5" {
		t.Errorf("checking after income = %s, want 2954.5", got)
	}
	// untouched account stays put
	if got := m2.State.Accounts["savings"].Balance.String(); got != "5000" {
		t.Errorf("savings = %s, want 5000", got)
	}
}

func TestApplyRoutesDebtLinkedPayment(t *testing.T) {
	s := NewState(testBudget())
	m, err := Apply(simpleTx("t1", "checking", "sub-card", "100", false), s)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := m.Tx.InterestPaid.String(); got != "10" {
		t.Errorf("interestPaid = %s, want 10", got)
	}
	if got := m.Tx.PrincipalPaid.String(); got != "90" {
		t.Errorf("principalPaid = %s, want 90", got)
	}
	if got := m.State.Debts["card"].AmountOwed.String(); got != "910" {
		t.Errorf("amountOwed = %s, want 910", got)
	}
	if got := m.State.Accounts["checking"].Balance.String(); got != "1900" {
		t.Errorf("checking = %s, want 1900", got)
	}
	if !m.Tx.PrincipalPaid.Add(m.Tx.InterestPaid).Equal(m.Tx.Amount) {
		t.Error("principal+interest != amount")
	}
}

func TestApplySplitLegsHitOwnAccounts(t *testing.T) {
	s := NewState(testBudget())
	tx := core.Transaction{
		ID:       "t1",
		Date:     core.NewDate(2024, 3, 10),
		Merchant: "Costco",
		Amount:   core.Dec("300"),
		Kind:     core.KindSplit,
		Splits: []core.Split{
			{SubCategoryID: "sub-groceries", Amount: core.Dec("200"), AccountID: "checking"},
			{SubCategoryID: "sub-card", Amount: core.Dec("100"), AccountID: "savings"},
		},
	}
	m, err := Apply(tx, s)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := m.State.Accounts["checking"].Balance.String(); got != "1800" {
		t.Errorf("checking = %s, want 1800", got)
	}
	if got := m.State.Accounts["savings"].Balance.String(); got != "4900" {
		t.Errorf("savings = %s, want 4900", got)
	}
	if got := m.Tx.Splits[1].PrincipalPaid.String(); got != "90" {
		t.Errorf("split principal = %s, want 90", got)
	}
	// the caller's splits stay unannotated
	if !tx.Splits[1].PrincipalPaid.IsZero() {
		t.Error("Apply mutated caller's splits")
	}
}

func TestApplyRejectsInvalidSplitSum(t *testing.T) {
	s := NewState(testBudget())
	tx := core.Transaction{
		ID:       "t1",
		Date:     core.NewDate(2024, 3, 10),
		Merchant: "Costco",
		Amount:   core.Dec("300"),
		Kind:     core.KindSplit,
		Splits: []core.Split{
			{SubCategoryID: "sub-groceries", Amount: core.Dec("200"), AccountID: "checking"},
			{SubCategoryID: "sub-card", Amount: core.Dec("98"), AccountID: "checking"},
		},
	}
	if _, err := Apply(tx, s); !errors.Is(err, core.ErrInvalidSplitSum) {
		t.Fatalf("err = %v, want ErrInvalidSplitSum", err)
	}
}

func TestReverseUndoesApply(t *testing.T) {
	s := NewState(testBudget())
	cases := []core.Transaction{
		simpleTx("t1", "checking", "sub-groceries", "45.50", false),
		simpleTx("t2", "checking", "", "1000", true),
		simpleTx("t3", "savings", "sub-card", "250", false),
	}
	for _, tx := range cases {
		t.Run(tx.ID, func(t *testing.T) {
			applied, err := Apply(tx, s)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			reversed, err := Reverse(applied.Tx, applied.State)
			if err != nil {
				t.Fatalf("reverse: %v", err)
			}
			for id, a := range s.Accounts {
				if !reversed.State.Accounts[id].Balance.Equal(a.Balance) {
					t.Errorf("account %s = %s, want %s", id, reversed.State.Accounts[id].Balance, a.Balance)
				}
			}
			for id, d := range s.Debts {
				if !reversed.State.Debts[id].AmountOwed.Equal(d.AmountOwed) {
					t.Errorf("debt %s = %s, want %s", id, reversed.State.Debts[id].AmountOwed, d.AmountOwed)
				}
			}
		})
	}
}

func TestUpdateReplacesEffect(t *testing.T) {
	s := NewState(testBudget())
	applied, err := Apply(simpleTx("t1", "checking", "sub-groceries", "50", false), s)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	updated := simpleTx("t1", "savings", "sub-groceries", "75", false)
	m, err := Update(applied.Tx, updated, applied.State)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := m.State.Accounts["checking"].Balance.String(); got != "2000" {
		t.Errorf("checking = %s, want 2000", got)
	}
	if got := m.State.Accounts["savings"].Balance.String(); got != "4925" {
		t.Errorf("savings = %s, want 4925", got)
	}
}

func TestBulkApplyAtomicity(t *testing.T) {
	s := NewState(testBudget())
	txs := []core.Transaction{
		simpleTx("t1", "checking", "sub-groceries", "100", false),
		simpleTx("t2", "no-such-account", "sub-groceries", "100", false),
	}
	next, writes, applied, err := BulkApply(txs, s)
	if !errors.Is(err, core.ErrUnknownAccount) {
		t.Fatalf("err = %v, want ErrUnknownAccount", err)
	}
	if writes != nil || applied != nil {
		t.Error("failed bulk apply leaked writes")
	}
	if got := next.Accounts["checking"].Balance.String(); got != "2000" {
		t.Errorf("checking = %s, want untouched 2000", got)
	}
}

func TestBulkReverseUnwindsNewestFirst(t *testing.T) {
	s := NewState(testBudget())
	txs := []core.Transaction{
		simpleTx("t1", "checking", "sub-card", "100", false),
		simpleTx("t2", "checking", "sub-card", "100", false),
	}
	next, _, applied, err := BulkApply(txs, s)
	if err != nil {
		t.Fatalf("bulk apply: %v", err)
	}
	reversed, _, err := BulkReverse(applied, next)
	if err != nil {
		t.Fatalf("bulk reverse: %v", err)
	}
	if got := reversed.Debts["card"].AmountOwed.String(); got != "1000" {
		t.Errorf("amountOwed = %s, want 1000", got)
	}
	if got := reversed.Accounts["checking"].Balance.String(); got != "2000" {
		t.Errorf("checking = %s, want 2000", got)
	}
}
