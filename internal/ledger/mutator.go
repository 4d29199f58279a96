// Package ledger applies and reverses transaction effects on account and
// debt state.
//
// Every operation is a pure function over an explicit State snapshot: the
// caller gets back the would-be state plus the write list to commit, and is
// expected to adopt the state only after the writes are confirmed.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/debt"
)

// State is the slice of budget state the mutator touches: account balances,
// debt balances, and the subcategory-to-debt links that route payments
// through the accrual engine.
type State struct {
	Accounts  map[string]core.Account
	Debts     map[string]core.Debt
	DebtLinks map[string]string
}

// NewState indexes a budget snapshot for mutation.
func NewState(b core.BudgetState) State {
	s := State{
		Accounts:  make(map[string]core.Account, len(b.Accounts)),
		Debts:     make(map[string]core.Debt, len(b.Debts)),
		DebtLinks: b.DebtLinks(),
	}
	for _, a := range b.Accounts {
		s.Accounts[a.ID] = a
	}
	for _, d := range b.Debts {
		s.Debts[d.ID] = d
	}
	return s
}

func (s State) clone() State {
	c := State{
		Accounts:  make(map[string]core.Account, len(s.Accounts)),
		Debts:     make(map[string]core.Debt, len(s.Debts)),
		DebtLinks: s.DebtLinks,
	}
	for id, a := range s.Accounts {
		c.Accounts[id] = a
	}
	for id, d := range s.Debts {
		c.Debts[id] = d
	}
	return c
}

// Mutation is the outcome of applying or reversing a transaction: the next
// state, the transaction as it should be persisted (principal/interest
// filled in for debt-linked legs), and the write list.
type Mutation struct {
	State  State
	Tx     core.Transaction
	Writes []core.Write
}

// leg is the unit of balance effect: a simple transaction is one leg, a
// split transaction is one leg per split.
type leg struct {
	accountID     string
	subCategoryID string
	amount        decimal.Decimal
	principalPaid decimal.Decimal
	splitIndex    int // -1 for the simple leg
}

func legsOf(tx core.Transaction) []leg {
	if tx.Kind == core.KindSplit {
		legs := make([]leg, len(tx.Splits))
		for i, sp := range tx.Splits {
			legs[i] = leg{
				accountID:     sp.AccountID,
				subCategoryID: sp.SubCategoryID,
				amount:        sp.Amount,
				principalPaid: sp.PrincipalPaid,
				splitIndex:    i,
			}
		}
		return legs
	}
	return []leg{{
		accountID:     tx.AccountID,
		subCategoryID: tx.SubCategoryID,
		amount:        tx.Amount,
		principalPaid: tx.PrincipalPaid,
		splitIndex:    -1,
	}}
}

// Apply applies a transaction's effect: each leg debits (expense) or
// credits (income) its account, and legs on debt-linked subcategories route
// through the accrual engine first so the interest/principal breakdown is
// persisted on the transaction.
func Apply(tx core.Transaction, s State) (Mutation, error) {
	if err := tx.Validate(); err != nil {
		return Mutation{}, err
	}
	if tx.Kind == core.KindSplit {
		// Splits share the caller's backing array; copy before annotating
		// principal/interest so Apply stays side-effect free.
		tx.Splits = append([]core.Split(nil), tx.Splits...)
	}
	next := s.clone()
	touchedAccounts := make(map[string]bool)
	touchedDebts := make(map[string]bool)

	for _, l := range legsOf(tx) {
		acct, ok := next.Accounts[l.accountID]
		if !ok {
			return Mutation{}, fmt.Errorf("%w: %s", core.ErrUnknownAccount, l.accountID)
		}

		if debtID, linked := next.DebtLinks[l.subCategoryID]; linked && !tx.IsIncome {
			d, ok := next.Debts[debtID]
			if !ok {
				return Mutation{}, fmt.Errorf("%w: %s", core.ErrUnknownDebt, debtID)
			}
			res := debt.ProcessPayment(d, l.amount)
			next.Debts[debtID] = res.Debt
			touchedDebts[debtID] = true
			if l.splitIndex >= 0 {
				tx.Splits[l.splitIndex].PrincipalPaid = res.PrincipalPaid
				tx.Splits[l.splitIndex].InterestPaid = res.InterestPaid
			} else {
				tx.PrincipalPaid = res.PrincipalPaid
				tx.InterestPaid = res.InterestPaid
			}
		}

		if tx.IsIncome {
			acct.Balance = core.Round2(acct.Balance.Add(l.amount))
		} else {
			acct.Balance = core.Round2(acct.Balance.Sub(l.amount))
		}
		next.Accounts[l.accountID] = acct
		touchedAccounts[l.accountID] = true
	}

	m := Mutation{State: next, Tx: tx}
	for id := range touchedAccounts {
		m.Writes = append(m.Writes, core.PutAccount(next.Accounts[id]))
	}
	for id := range touchedDebts {
		m.Writes = append(m.Writes, core.PutDebt(next.Debts[id]))
	}
	m.Writes = append(m.Writes, core.PutTransaction(tx))
	return m, nil
}

// Reverse exactly inverts a previously applied transaction: balance deltas
// are undone and recorded principal is re-credited onto the linked debt.
// Interest that would have accrued absent the payment is not re-applied.
func Reverse(tx core.Transaction, s State) (Mutation, error) {
	next := s.clone()
	touchedAccounts := make(map[string]bool)
	touchedDebts := make(map[string]bool)

	for _, l := range legsOf(tx) {
		acct, ok := next.Accounts[l.accountID]
		if !ok {
			return Mutation{}, fmt.Errorf("%w: %s", core.ErrUnknownAccount, l.accountID)
		}

		if debtID, linked := next.DebtLinks[l.subCategoryID]; linked && l.principalPaid.IsPositive() {
			d, ok := next.Debts[debtID]
			if !ok {
				return Mutation{}, fmt.Errorf("%w: %s", core.ErrUnknownDebt, debtID)
			}
			next.Debts[debtID] = debt.ReversePayment(d, l.principalPaid)
			touchedDebts[debtID] = true
		}

		if tx.IsIncome {
			acct.Balance = core.Round2(acct.Balance.Sub(l.amount))
		} else {
			acct.Balance = core.Round2(acct.Balance.Add(l.amount))
		}
		next.Accounts[l.accountID] = acct
		touchedAccounts[l.accountID] = true
	}

	m := Mutation{State: next, Tx: tx}
	for id := range touchedAccounts {
		m.Writes = append(m.Writes, core.PutAccount(next.Accounts[id]))
	}
	for id := range touchedDebts {
		m.Writes = append(m.Writes, core.PutDebt(next.Debts[id]))
	}
	m.Writes = append(m.Writes, core.DeleteTransaction(tx.ID))
	return m, nil
}

// Update edits a transaction by reversing the old effect and applying the
// new one. The write list deletes the old row before putting the new one so
// id changes stay consistent.
func Update(old, updated core.Transaction, s State) (Mutation, error) {
	rev, err := Reverse(old, s)
	if err != nil {
		return Mutation{}, fmt.Errorf("reverse prior effect: %w", err)
	}
	app, err := Apply(updated, rev.State)
	if err != nil {
		return Mutation{}, err
	}
	app.Writes = append(rev.Writes, app.Writes...)
	return app, nil
}

// BulkApply applies transactions in order as one atomic unit. Any failure
// discards the whole batch.
func BulkApply(txs []core.Transaction, s State) (State, []core.Write, []core.Transaction, error) {
	next := s
	var writes []core.Write
	applied := make([]core.Transaction, 0, len(txs))
	for i, tx := range txs {
		m, err := Apply(tx, next)
		if err != nil {
			return s, nil, nil, fmt.Errorf("transaction %d (%s): %w", i, tx.Merchant, err)
		}
		next = m.State
		writes = append(writes, m.Writes...)
		applied = append(applied, m.Tx)
	}
	return next, writes, applied, nil
}

// BulkReverse reverses transactions as one atomic unit, newest first so
// interleaved debt payments unwind in order.
func BulkReverse(txs []core.Transaction, s State) (State, []core.Write, error) {
	next := s
	var writes []core.Write
	for i := len(txs) - 1; i >= 0; i-- {
		m, err := Reverse(txs[i], next)
		if err != nil {
			return s, nil, fmt.Errorf("transaction %s: %w", txs[i].ID, err)
		}
		next = m.State
		writes = append(writes, m.Writes...)
	}
	return next, writes, nil
}
