package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	CompoundDaily   CompoundingFrequency = "daily"
	CompoundMonthly CompoundingFrequency = "monthly"
	CompoundNone    CompoundingFrequency = "none"
)

const (
	TypeExpense     SubCategoryType = "expense"
	TypeSinkingFund SubCategoryType = "sinking_fund"
	TypeDeduction   SubCategoryType = "deduction"
)

const (
	KindSimple TransactionKind = "simple"
	KindSplit  TransactionKind = "split"
)

type (
	CompoundingFrequency string
	SubCategoryType      string
	TransactionKind      string

	// Account is a bank account owned by the budget. Its balance is mutated
	// only through the ledger mutator.
	Account struct {
		ID      string
		Name    string
		Balance decimal.Decimal
	}

	// Debt tracks an owed balance. AmountOwed decreases only by principal
	// paid and increases only through compounding.
	Debt struct {
		ID                  string
		Name                string
		AmountOwed          decimal.Decimal
		StartingAmount      decimal.Decimal
		InterestRate        decimal.Decimal // APR, percent
		Compounding         CompoundingFrequency
		MonthlyPayment      decimal.Decimal
		ExtraMonthlyPayment decimal.Decimal
		LastCompounded      Date
		PaymentDueDay       int
	}

	SubCategory struct {
		ID           string
		Name         string
		Type         SubCategoryType
		Budgeted     decimal.Decimal
		LinkedDebtID string // non-empty delegates the budgeted display to the debt payment
	}

	Category struct {
		ID            string
		Name          string
		SubCategories []SubCategory
	}

	// Split is one leg of a split transaction. Each leg debits or credits
	// its own account independently.
	Split struct {
		SubCategoryID string
		Amount        decimal.Decimal
		AccountID     string
		Notes         string
		PrincipalPaid decimal.Decimal
		InterestPaid  decimal.Decimal
	}

	// Transaction is either a simple movement or a split one, discriminated
	// by Kind. A split transaction's Amount is the display total; only the
	// legs in Splits carry balance effects.
	Transaction struct {
		ID            string
		Date          Date
		Merchant      string
		Amount        decimal.Decimal
		AccountID     string
		SubCategoryID string
		IsIncome      bool
		Notes         string
		PrincipalPaid decimal.Decimal
		InterestPaid  decimal.Decimal
		Kind          TransactionKind
		Splits        []Split
	}

	// MonthEntry is the per-month budget snapshot keyed by "YYYY-MM".
	MonthEntry struct {
		Key                 string
		IncomeSource1       decimal.Decimal
		IncomeSource2       decimal.Decimal
		SavingsGoal         decimal.Decimal
		Categories          []Category
		SinkingFundBalances map[string]decimal.Decimal
	}

	RecurringItem struct {
		ID            string
		Merchant      string
		Amount        decimal.Decimal
		DayOfMonth    int
		SubCategoryID string
		IsVariable    bool
		PendingAmount decimal.Decimal
		LastPaidMonth string
	}

	// ImportRow is a normalized bank-statement row moving through the
	// reconciler stages.
	ImportRow struct {
		TempID           string
		Date             Date
		Merchant         string
		OriginalMerchant string
		Amount           decimal.Decimal
		IsIncome         bool
		IsReturn         bool
		LinkedParentID   string
		SubCategoryID    string
		Note             string
	}

	// BudgetState is the full per-budget snapshot the engines operate on.
	BudgetState struct {
		Accounts      []Account
		Debts         []Debt
		Categories    []Category
		Months        map[string]MonthEntry
		Recurring     []RecurringItem
		SetupComplete bool
	}
)

var (
	ErrInvalidSplitSum     = errors.New("split amounts do not sum to transaction total")
	ErrInsufficientPayment = errors.New("payment does not cover accruing interest")
	ErrUnparseableDate     = errors.New("unparseable date")
	ErrUnparseableAmount   = errors.New("unparseable amount")
	ErrMissingAmount       = errors.New("missing amount")
	ErrMissingDate         = errors.New("missing date")
	ErrUnknownAccount      = errors.New("unknown account")
	ErrUnknownDebt         = errors.New("unknown debt")
	ErrEmptyMerchant       = errors.New("empty merchant")
	ErrSessionActive       = errors.New("an import session is already active")
)

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Merchant)) == 0 {
		return ErrEmptyMerchant
	}
	switch t.Kind {
	case KindSimple:
		if t.AccountID == "" {
			return ErrUnknownAccount
		}
		if len(t.Splits) > 0 {
			return errors.New("simple transaction cannot carry splits")
		}
	case KindSplit:
		if t.IsIncome {
			return errors.New("split transaction cannot be income")
		}
		if len(t.Splits) == 0 {
			return errors.New("split transaction needs at least one split")
		}
		sum := decimal.Zero
		for _, s := range t.Splits {
			if s.AccountID == "" {
				return ErrUnknownAccount
			}
			sum = sum.Add(s.Amount)
		}
		if !WithinTolerance(sum, t.Amount, SplitTolerance) {
			return ErrInvalidSplitSum
		}
	default:
		return errors.New("unknown transaction kind")
	}
	return nil
}

// SpentEffect returns the signed effect of the transaction on spending
// totals: positive for expenses, negative for income.
func (t Transaction) SpentEffect() decimal.Decimal {
	if t.IsIncome {
		return t.Amount.Neg()
	}
	return t.Amount
}

// SubCategoryByID walks the category tree for a subcategory.
func (s BudgetState) SubCategoryByID(id string) (SubCategory, bool) {
	for _, c := range s.Categories {
		for _, sc := range c.SubCategories {
			if sc.ID == id {
				return sc, true
			}
		}
	}
	return SubCategory{}, false
}

// DebtLinks maps subcategory id to the id of its linked debt.
func (s BudgetState) DebtLinks() map[string]string {
	links := make(map[string]string)
	for _, c := range s.Categories {
		for _, sc := range c.SubCategories {
			if sc.LinkedDebtID != "" {
				links[sc.ID] = sc.LinkedDebtID
			}
		}
	}
	return links
}

func (s BudgetState) DebtByID(id string) (Debt, bool) {
	for _, d := range s.Debts {
		if d.ID == id {
			return d, true
		}
	}
	return Debt{}, false
}

func (s BudgetState) AccountByID(id string) (Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}
