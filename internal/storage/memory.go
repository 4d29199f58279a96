package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"tally/internal/core"
)

// MemoryRepository keeps everything in process memory. It backs tests and
// the memory backend.
type MemoryRepository struct {
	mu       sync.RWMutex
	state    core.BudgetState
	txs      map[string]core.Transaction
	mirrored map[string]bool
	subs     []func([]core.Write)
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state:    core.BudgetState{Months: map[string]core.MonthEntry{}},
		txs:      map[string]core.Transaction{},
		mirrored: map[string]bool{},
	}
}

// Seed replaces the stored snapshot. Test setup only.
func (r *MemoryRepository) Seed(state core.BudgetState, txs []core.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state.Months == nil {
		state.Months = map[string]core.MonthEntry{}
	}
	r.state = state
	r.txs = map[string]core.Transaction{}
	r.mirrored = map[string]bool{}
	for _, t := range txs {
		r.txs[t.ID] = t
	}
}

func (r *MemoryRepository) Load(ctx context.Context) (core.BudgetState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := r.state
	state.Accounts = append([]core.Account(nil), r.state.Accounts...)
	state.Debts = append([]core.Debt(nil), r.state.Debts...)
	state.Recurring = append([]core.RecurringItem(nil), r.state.Recurring...)
	state.Months = make(map[string]core.MonthEntry, len(r.state.Months))
	latest := ""
	for key, m := range r.state.Months {
		state.Months[key] = m
		if key > latest {
			latest = key
		}
	}
	if latest != "" {
		state.Categories = state.Months[latest].Categories
	}
	return state, nil
}

func (r *MemoryRepository) SaveBatch(ctx context.Context, writes []core.Write) error {
	r.mu.Lock()
	for _, w := range writes {
		switch w.Kind {
		case core.WritePutAccount:
			r.state.Accounts = upsertAccount(r.state.Accounts, *w.Account)
		case core.WritePutDebt:
			r.state.Debts = upsertDebt(r.state.Debts, *w.Debt)
		case core.WritePutTransaction:
			r.txs[w.Transaction.ID] = *w.Transaction
			r.mirrored[w.Transaction.ID] = false
		case core.WriteDeleteTransaction:
			delete(r.txs, w.TransactionID)
			delete(r.mirrored, w.TransactionID)
		case core.WritePutMonth:
			r.state.Months[w.Month.Key] = *w.Month
		case core.WritePutRecurring:
			r.state.Recurring = upsertRecurring(r.state.Recurring, *w.Recurring)
		case core.WriteCompleteSetup:
			r.state.SetupComplete = true
		}
	}
	subs := append(([]func([]core.Write))(nil), r.subs...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(writes)
	}
	return nil
}

func (r *MemoryRepository) Transactions(ctx context.Context, monthKey string) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Transaction
	for _, t := range r.txs {
		if monthKey == "" || strings.HasPrefix(t.Date.ISO(), monthKey) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.Before(out[j].Date.Time)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.txs[id]
	if !ok {
		return core.Transaction{}, ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error) {
	all, err := r.Transactions(ctx, "")
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.Transaction
	for _, t := range all {
		if len(out) >= limit {
			break
		}
		if !r.mirrored[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkMirrored(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txs[id]; !ok {
		return ErrNotFound
	}
	r.mirrored[id] = true
	return nil
}

func (r *MemoryRepository) Subscribe(fn func([]core.Write)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *MemoryRepository) Close() error { return nil }

func upsertAccount(accounts []core.Account, a core.Account) []core.Account {
	for i := range accounts {
		if accounts[i].ID == a.ID {
			accounts[i] = a
			return accounts
		}
	}
	return append(accounts, a)
}

func upsertDebt(debts []core.Debt, d core.Debt) []core.Debt {
	for i := range debts {
		if debts[i].ID == d.ID {
			debts[i] = d
			return debts
		}
	}
	return append(debts, d)
}

func upsertRecurring(items []core.RecurringItem, item core.RecurringItem) []core.RecurringItem {
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}
