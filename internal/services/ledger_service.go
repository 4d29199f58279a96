// Package services orchestrates the budget engines over the repository:
// atomic commits, import sessions, and the recurring payment tick.
package services

import (
	"context"
	"fmt"
	"sync"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/debt"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/rollover"
	"tally/internal/schedule"
	"tally/internal/storage"
)

// LedgerService owns the in-memory budget snapshot and every mutation of it.
// Engines produce write lists; the service commits them through the
// repository and adopts the resulting state only after the commit is
// confirmed, so a failed save leaves the snapshot untouched and the caller
// free to retry.
type LedgerService struct {
	repo   storage.Repository
	amqp   *amqp.Client
	logger *log.Logger

	mu    sync.Mutex
	state core.BudgetState
}

// NewLedgerService loads the stored snapshot. The AMQP client is optional;
// without one, commits simply skip the mirror notification.
func NewLedgerService(ctx context.Context, repo storage.Repository, amqpClient *amqp.Client, logger *log.Logger) (*LedgerService, error) {
	state, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load budget state: %w", err)
	}
	return &LedgerService{
		repo:   repo,
		amqp:   amqpClient,
		logger: logger.WithComponent(log.ComponentLedger),
		state:  state,
	}, nil
}

// State returns a copy of the current snapshot.
func (s *LedgerService) State() core.BudgetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyState(s.state)
}

// RunMaintenance brings the snapshot up to date with the calendar: daily
// compounding debts fold their accrued interest up to today, and when today
// falls in a month without stored data, a rollover month is created. Both
// steps are idempotent, so running on every tick or startup is safe.
func (s *LedgerService) RunMaintenance(ctx context.Context, today core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writes []core.Write
	for _, d := range s.state.Debts {
		caught := debt.CatchUpDailyCompounding(d, today)
		if !caught.LastCompounded.Equal(d.LastCompounded.Time) {
			writes = append(writes, core.PutDebt(caught))
		}
	}

	if targetKey, due := rollover.Due(s.state, today); due {
		priorKey := latestMonthKey(s.state.Months)
		prior := s.state.Months[priorKey]
		priorTxs, err := s.repo.Transactions(ctx, priorKey)
		if err != nil {
			return fmt.Errorf("load prior month transactions: %w", err)
		}
		next := rollover.CreateNewMonth(prior, priorTxs, targetKey)
		writes = append(writes, core.PutMonth(next))
		s.logger.InfoContext(ctx, "Rolling over into new month",
			log.FieldOperation, log.OpRollover,
			log.FieldMonthKey, targetKey)
	}

	if len(writes) == 0 {
		return nil
	}
	return s.commitLocked(ctx, writes)
}

// CreateTransaction applies a transaction to the ledger and commits it. The
// returned transaction carries the principal/interest breakdown filled in
// for debt-linked legs.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := ledger.Apply(tx, ledger.NewState(s.state))
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.commitLocked(ctx, m.Writes); err != nil {
		return core.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "Transaction recorded",
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, m.Tx.ID,
		log.FieldMerchant, m.Tx.Merchant,
		log.FieldAmount, m.Tx.Amount.StringFixed(2))
	return m.Tx, nil
}

// UpdateTransaction reverses the stored transaction with updated.ID and
// applies the edited one in a single commit.
func (s *LedgerService) UpdateTransaction(ctx context.Context, updated core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.repo.Transaction(ctx, updated.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("load prior transaction: %w", err)
	}
	m, err := ledger.Update(old, updated, ledger.NewState(s.state))
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.commitLocked(ctx, m.Writes); err != nil {
		return core.Transaction{}, err
	}
	s.logger.InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, m.Tx.ID)
	return m.Tx, nil
}

// DeleteTransaction reverses a transaction's balance effects and removes it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.repo.Transaction(ctx, id)
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	m, err := ledger.Reverse(tx, ledger.NewState(s.state))
	if err != nil {
		return err
	}
	if err := s.commitLocked(ctx, m.Writes); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id)
	return nil
}

// BulkImport commits an import batch atomically: replaced duplicates are
// reversed first, then the new transactions apply in order. Any failure
// discards the whole batch. Returns the applied transactions.
func (s *LedgerService) BulkImport(ctx context.Context, txs []core.Transaction, replaced []core.Transaction) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := ledger.NewState(s.state)
	st, revWrites, err := ledger.BulkReverse(replaced, st)
	if err != nil {
		return nil, fmt.Errorf("reverse replaced duplicates: %w", err)
	}
	_, appWrites, applied, err := ledger.BulkApply(txs, st)
	if err != nil {
		return nil, err
	}
	writes := append(revWrites, appWrites...)
	if len(writes) == 0 {
		return nil, nil
	}
	if err := s.commitLocked(ctx, writes); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Import batch committed",
		log.FieldOperation, log.OpImport,
		log.FieldRowCount, len(applied))
	return applied, nil
}

// CommitEmission records a due recurring bill: the emitted transaction and
// the stamped item state land in one commit, so a crash between them cannot
// double-pay the bill on the next tick.
func (s *LedgerService) CommitEmission(ctx context.Context, em schedule.Emission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := ledger.Apply(em.Tx, ledger.NewState(s.state))
	if err != nil {
		return err
	}
	writes := append(m.Writes, core.PutRecurring(em.Item))
	return s.commitLocked(ctx, writes)
}

// SaveAccount upserts an account without ledger effects. Balance edits made
// this way are deliberate corrections, not transactions.
func (s *LedgerService) SaveAccount(ctx context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, []core.Write{core.PutAccount(a)})
}

func (s *LedgerService) SaveDebt(ctx context.Context, d core.Debt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, []core.Write{core.PutDebt(d)})
}

func (s *LedgerService) SaveMonth(ctx context.Context, m core.MonthEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, []core.Write{core.PutMonth(m)})
}

func (s *LedgerService) SaveRecurring(ctx context.Context, item core.RecurringItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(ctx, []core.Write{core.PutRecurring(item)})
}

// FinishSetup commits the first-run budget in one batch and flips the setup
// flag, after which rollover becomes active.
func (s *LedgerService) FinishSetup(ctx context.Context, accounts []core.Account, debts []core.Debt, firstMonth core.MonthEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writes []core.Write
	for _, a := range accounts {
		writes = append(writes, core.PutAccount(a))
	}
	for _, d := range debts {
		writes = append(writes, core.PutDebt(d))
	}
	writes = append(writes, core.PutMonth(firstMonth), core.CompleteSetup())
	return s.commitLocked(ctx, writes)
}

// commitLocked saves the write list and, only on success, folds it into the
// in-memory snapshot and notifies the mirror. Callers hold s.mu.
func (s *LedgerService) commitLocked(ctx context.Context, writes []core.Write) error {
	if err := s.repo.SaveBatch(ctx, writes); err != nil {
		return fmt.Errorf("commit writes: %w", err)
	}
	s.state = applyWrites(s.state, writes)
	s.publishCommitted(ctx, writes)
	return nil
}

// publishCommitted is best-effort: the mirror worker also sweeps unmirrored
// rows periodically, so a lost notification only delays the mirror.
func (s *LedgerService) publishCommitted(ctx context.Context, writes []core.Write) {
	if s.amqp == nil {
		return
	}
	for _, w := range writes {
		if w.Kind != core.WritePutTransaction {
			continue
		}
		if err := s.amqp.PublishTransactionCommitted(ctx, w.Transaction.ID); err != nil {
			s.logger.WarnContext(ctx, "Mirror notification failed",
				log.FieldTransactionID, w.Transaction.ID,
				log.FieldError, err)
		}
	}
}

// applyWrites folds a committed write list into a snapshot. Transactions are
// not part of the snapshot; they stay behind the repository.
func applyWrites(state core.BudgetState, writes []core.Write) core.BudgetState {
	for _, w := range writes {
		switch w.Kind {
		case core.WritePutAccount:
			state.Accounts = putAccount(state.Accounts, *w.Account)
		case core.WritePutDebt:
			state.Debts = putDebt(state.Debts, *w.Debt)
		case core.WritePutMonth:
			if state.Months == nil {
				state.Months = map[string]core.MonthEntry{}
			}
			state.Months[w.Month.Key] = *w.Month
			if w.Month.Key >= latestMonthKey(state.Months) {
				state.Categories = w.Month.Categories
			}
		case core.WritePutRecurring:
			state.Recurring = putRecurring(state.Recurring, *w.Recurring)
		case core.WriteCompleteSetup:
			state.SetupComplete = true
		}
	}
	return state
}

func copyState(s core.BudgetState) core.BudgetState {
	out := s
	out.Accounts = append([]core.Account(nil), s.Accounts...)
	out.Debts = append([]core.Debt(nil), s.Debts...)
	out.Recurring = append([]core.RecurringItem(nil), s.Recurring...)
	out.Months = make(map[string]core.MonthEntry, len(s.Months))
	for k, m := range s.Months {
		out.Months[k] = m
	}
	return out
}

func latestMonthKey(months map[string]core.MonthEntry) string {
	latest := ""
	for key := range months {
		if key > latest {
			latest = key
		}
	}
	return latest
}

func putAccount(accounts []core.Account, a core.Account) []core.Account {
	for i := range accounts {
		if accounts[i].ID == a.ID {
			accounts[i] = a
			return accounts
		}
	}
	return append(accounts, a)
}

func putDebt(debts []core.Debt, d core.Debt) []core.Debt {
	for i := range debts {
		if debts[i].ID == d.ID {
			debts[i] = d
			return debts
		}
	}
	return append(debts, d)
}

func putRecurring(items []core.RecurringItem, item core.RecurringItem) []core.RecurringItem {
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}
