package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores the budget in a single sqlite file. Amounts are
// persisted as decimal strings, dates as ISO "YYYY-MM-DD" text.
type SQLiteRepository struct {
	db *sql.DB

	mu   sync.Mutex
	subs []func([]core.Write)
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Subscribe(fn func([]core.Write)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *SQLiteRepository) notify(writes []core.Write) {
	r.mu.Lock()
	subs := append(([]func([]core.Write))(nil), r.subs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(writes)
	}
}

func (r *SQLiteRepository) Load(ctx context.Context) (core.BudgetState, error) {
	var state core.BudgetState

	setup, err := r.setting(ctx, "setup_complete")
	if err != nil {
		return state, err
	}
	state.SetupComplete = setup == "1"

	if state.Accounts, err = r.loadAccounts(ctx); err != nil {
		return state, err
	}
	if state.Debts, err = r.loadDebts(ctx); err != nil {
		return state, err
	}
	if state.Months, err = r.loadMonths(ctx); err != nil {
		return state, err
	}
	if state.Recurring, err = r.loadRecurring(ctx); err != nil {
		return state, err
	}

	// the category template is the newest month's structure
	latest := ""
	for key := range state.Months {
		if key > latest {
			latest = key
		}
	}
	if latest != "" {
		state.Categories = state.Months[latest].Categories
	}

	return state, nil
}

// SaveBatch commits every write in one sqlite transaction and notifies
// subscribers only after the commit lands.
func (r *SQLiteRepository) SaveBatch(ctx context.Context, writes []core.Write) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write batch: %w", err)
	}
	defer tx.Rollback()

	for _, w := range writes {
		var err error
		switch w.Kind {
		case core.WritePutAccount:
			err = putAccount(ctx, tx, *w.Account)
		case core.WritePutDebt:
			err = putDebt(ctx, tx, *w.Debt)
		case core.WritePutTransaction:
			err = putTransaction(ctx, tx, *w.Transaction)
		case core.WriteDeleteTransaction:
			err = deleteTransaction(ctx, tx, w.TransactionID)
		case core.WritePutMonth:
			err = putMonth(ctx, tx, *w.Month)
		case core.WritePutRecurring:
			err = putRecurring(ctx, tx, *w.Recurring)
		case core.WriteCompleteSetup:
			_, err = tx.ExecContext(ctx,
				`UPDATE settings SET value = '1' WHERE key = 'setup_complete'`)
		default:
			err = fmt.Errorf("unknown write kind: %q", w.Kind)
		}
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit write batch: %w", err)
	}

	slog.DebugContext(ctx, "Write batch committed", "writes", len(writes))
	r.notify(writes)
	return nil
}

func (r *SQLiteRepository) Transactions(ctx context.Context, monthKey string) ([]core.Transaction, error) {
	if monthKey == "" {
		return r.queryTransactions(ctx, "")
	}
	return r.queryTransactions(ctx, "WHERE date LIKE ?", monthKey+"%")
}

// Transaction returns one transaction by id, or ErrNotFound.
func (r *SQLiteRepository) Transaction(ctx context.Context, id string) (core.Transaction, error) {
	txs, err := r.queryTransactions(ctx, "WHERE id = ?", id)
	if err != nil {
		return core.Transaction{}, err
	}
	if len(txs) == 0 {
		return core.Transaction{}, ErrNotFound
	}
	return txs[0], nil
}

// PendingMirror returns transactions not yet mirrored to the sheet, oldest
// first.
func (r *SQLiteRepository) PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error) {
	return r.queryTransactions(ctx, "WHERE mirrored = 0 ORDER BY date, id LIMIT ?", limit)
}

// MarkMirrored records that the transaction reached the sheet mirror.
func (r *SQLiteRepository) MarkMirrored(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET mirrored = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark transaction mirrored %s: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, where string, args ...any) ([]core.Transaction, error) {
	query := `SELECT id, date, merchant, amount, account_id, subcategory_id,
		is_income, notes, principal_paid, interest_paid, kind
		FROM transactions `
	if !strings.Contains(where, "ORDER BY") {
		where += " ORDER BY date, id"
	}
	query += where

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txs []core.Transaction
	for rows.Next() {
		var (
			t                           core.Transaction
			date, amount, principal, pi string
			isIncome                    int
		)
		if err := rows.Scan(&t.ID, &date, &t.Merchant, &amount, &t.AccountID,
			&t.SubCategoryID, &isIncome, &t.Notes, &principal, &pi, &t.Kind); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.IsIncome = isIncome != 0
		if t.Date, err = parseDateText(date); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		if t.Amount, err = parseDecText(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
		}
		if t.PrincipalPaid, err = parseDecText(principal); err != nil {
			return nil, fmt.Errorf("transaction %s principal: %w", t.ID, err)
		}
		if t.InterestPaid, err = parseDecText(pi); err != nil {
			return nil, fmt.Errorf("transaction %s interest: %w", t.ID, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}

	for i := range txs {
		if txs[i].Kind != core.KindSplit {
			continue
		}
		if txs[i].Splits, err = r.loadSplits(ctx, txs[i].ID); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func (r *SQLiteRepository) setting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value, nil
}

func (r *SQLiteRepository) loadAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, balance FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.Name, &balance); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if a.Balance, err = parseDecText(balance); err != nil {
			return nil, fmt.Errorf("account %s balance: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) loadDebts(ctx context.Context) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, amount_owed, starting_amount, interest_rate,
		compounding, monthly_payment, extra_monthly_payment, last_compounded,
		payment_due_day FROM debts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	for rows.Next() {
		var d core.Debt
		var owed, start, rate, monthly, extra, last string
		if err := rows.Scan(&d.ID, &d.Name, &owed, &start, &rate,
			&d.Compounding, &monthly, &extra, &last, &d.PaymentDueDay); err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		fields := []struct {
			dst  *decimal.Decimal
			text string
		}{
			{&d.AmountOwed, owed}, {&d.StartingAmount, start},
			{&d.InterestRate, rate}, {&d.MonthlyPayment, monthly},
			{&d.ExtraMonthlyPayment, extra},
		}
		for _, f := range fields {
			if *f.dst, err = parseDecText(f.text); err != nil {
				return nil, fmt.Errorf("debt %s: %w", d.ID, err)
			}
		}
		if d.LastCompounded, err = parseDateText(last); err != nil {
			return nil, fmt.Errorf("debt %s last compounded: %w", d.ID, err)
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

func (r *SQLiteRepository) loadMonths(ctx context.Context) (map[string]core.MonthEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key, income_source1, income_source2, savings_goal FROM months`)
	if err != nil {
		return nil, fmt.Errorf("query months: %w", err)
	}
	defer rows.Close()

	months := make(map[string]core.MonthEntry)
	for rows.Next() {
		var m core.MonthEntry
		var i1, i2, goal string
		if err := rows.Scan(&m.Key, &i1, &i2, &goal); err != nil {
			return nil, fmt.Errorf("scan month: %w", err)
		}
		if m.IncomeSource1, err = parseDecText(i1); err != nil {
			return nil, fmt.Errorf("month %s: %w", m.Key, err)
		}
		if m.IncomeSource2, err = parseDecText(i2); err != nil {
			return nil, fmt.Errorf("month %s: %w", m.Key, err)
		}
		if m.SavingsGoal, err = parseDecText(goal); err != nil {
			return nil, fmt.Errorf("month %s: %w", m.Key, err)
		}
		months[m.Key] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate months: %w", err)
	}

	for key, m := range months {
		if m.Categories, err = r.loadMonthCategories(ctx, key); err != nil {
			return nil, err
		}
		if m.SinkingFundBalances, err = r.loadSinkingBalances(ctx, key); err != nil {
			return nil, err
		}
		months[key] = m
	}
	return months, nil
}

func (r *SQLiteRepository) loadMonthCategories(ctx context.Context, key string) ([]core.Category, error) {
	subRows, err := r.db.QueryContext(ctx,
		`SELECT category_id, id, name, type, budgeted, linked_debt_id
		FROM month_subcategories WHERE month_key = ? ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("query subcategories: %w", err)
	}
	defer subRows.Close()

	subsByCategory := make(map[string][]core.SubCategory)
	for subRows.Next() {
		var catID, budgeted string
		var sc core.SubCategory
		if err := subRows.Scan(&catID, &sc.ID, &sc.Name, &sc.Type,
			&budgeted, &sc.LinkedDebtID); err != nil {
			return nil, fmt.Errorf("scan subcategory: %w", err)
		}
		if sc.Budgeted, err = parseDecText(budgeted); err != nil {
			return nil, fmt.Errorf("subcategory %s budgeted: %w", sc.ID, err)
		}
		subsByCategory[catID] = append(subsByCategory[catID], sc)
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subcategories: %w", err)
	}

	catRows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM month_categories WHERE month_key = ? ORDER BY position`, key)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer catRows.Close()

	var categories []core.Category
	for catRows.Next() {
		var c core.Category
		if err := catRows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.SubCategories = subsByCategory[c.ID]
		categories = append(categories, c)
	}
	return categories, catRows.Err()
}

func (r *SQLiteRepository) loadSinkingBalances(ctx context.Context, key string) (map[string]decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subcategory_id, balance FROM sinking_fund_balances WHERE month_key = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("query sinking fund balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var id, balance string
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, fmt.Errorf("scan sinking fund balance: %w", err)
		}
		if balances[id], err = parseDecText(balance); err != nil {
			return nil, fmt.Errorf("sinking fund %s: %w", id, err)
		}
	}
	return balances, rows.Err()
}

func (r *SQLiteRepository) loadRecurring(ctx context.Context) ([]core.RecurringItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, merchant, amount, day_of_month, subcategory_id,
		is_variable, pending_amount, last_paid_month FROM recurring_items ORDER BY merchant`)
	if err != nil {
		return nil, fmt.Errorf("query recurring items: %w", err)
	}
	defer rows.Close()

	var items []core.RecurringItem
	for rows.Next() {
		var item core.RecurringItem
		var amount, pending string
		var variable int
		if err := rows.Scan(&item.ID, &item.Merchant, &amount, &item.DayOfMonth,
			&item.SubCategoryID, &variable, &pending, &item.LastPaidMonth); err != nil {
			return nil, fmt.Errorf("scan recurring item: %w", err)
		}
		item.IsVariable = variable != 0
		if item.Amount, err = parseDecText(amount); err != nil {
			return nil, fmt.Errorf("recurring %s amount: %w", item.ID, err)
		}
		if item.PendingAmount, err = parseDecText(pending); err != nil {
			return nil, fmt.Errorf("recurring %s pending: %w", item.ID, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) loadSplits(ctx context.Context, txID string) ([]core.Split, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT subcategory_id, amount, account_id, notes, principal_paid, interest_paid
		FROM splits WHERE transaction_id = ? ORDER BY position`, txID)
	if err != nil {
		return nil, fmt.Errorf("query splits: %w", err)
	}
	defer rows.Close()

	var splits []core.Split
	for rows.Next() {
		var s core.Split
		var amount, principal, interest string
		if err := rows.Scan(&s.SubCategoryID, &amount, &s.AccountID,
			&s.Notes, &principal, &interest); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if s.Amount, err = parseDecText(amount); err != nil {
			return nil, fmt.Errorf("split amount: %w", err)
		}
		if s.PrincipalPaid, err = parseDecText(principal); err != nil {
			return nil, fmt.Errorf("split principal: %w", err)
		}
		if s.InterestPaid, err = parseDecText(interest); err != nil {
			return nil, fmt.Errorf("split interest: %w", err)
		}
		splits = append(splits, s)
	}
	return splits, rows.Err()
}

func putAccount(ctx context.Context, tx *sql.Tx, a core.Account) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (id, name, balance) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, balance = excluded.balance`,
		a.ID, a.Name, a.Balance.String())
	if err != nil {
		return fmt.Errorf("put account %s: %w", a.ID, err)
	}
	return nil
}

func putDebt(ctx context.Context, tx *sql.Tx, d core.Debt) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO debts (id, name, amount_owed, starting_amount, interest_rate,
		compounding, monthly_payment, extra_monthly_payment, last_compounded, payment_due_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			amount_owed = excluded.amount_owed,
			starting_amount = excluded.starting_amount,
			interest_rate = excluded.interest_rate,
			compounding = excluded.compounding,
			monthly_payment = excluded.monthly_payment,
			extra_monthly_payment = excluded.extra_monthly_payment,
			last_compounded = excluded.last_compounded,
			payment_due_day = excluded.payment_due_day`,
		d.ID, d.Name, d.AmountOwed.String(), d.StartingAmount.String(),
		d.InterestRate.String(), string(d.Compounding), d.MonthlyPayment.String(),
		d.ExtraMonthlyPayment.String(), dateText(d.LastCompounded), d.PaymentDueDay)
	if err != nil {
		return fmt.Errorf("put debt %s: %w", d.ID, err)
	}
	return nil
}

func putTransaction(ctx context.Context, tx *sql.Tx, t core.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, date, merchant, amount, account_id,
		subcategory_id, is_income, notes, principal_paid, interest_paid, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			merchant = excluded.merchant,
			amount = excluded.amount,
			account_id = excluded.account_id,
			subcategory_id = excluded.subcategory_id,
			is_income = excluded.is_income,
			notes = excluded.notes,
			principal_paid = excluded.principal_paid,
			interest_paid = excluded.interest_paid,
			kind = excluded.kind,
			mirrored = 0`,
		t.ID, dateText(t.Date), t.Merchant, t.Amount.String(), t.AccountID,
		t.SubCategoryID, boolInt(t.IsIncome), t.Notes,
		t.PrincipalPaid.String(), t.InterestPaid.String(), string(t.Kind))
	if err != nil {
		return fmt.Errorf("put transaction %s: %w", t.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM splits WHERE transaction_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear splits for %s: %w", t.ID, err)
	}
	for i, s := range t.Splits {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO splits (transaction_id, position, subcategory_id, amount,
			account_id, notes, principal_paid, interest_paid)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, i, s.SubCategoryID, s.Amount.String(), s.AccountID,
			s.Notes, s.PrincipalPaid.String(), s.InterestPaid.String()); err != nil {
			return fmt.Errorf("put split %d of %s: %w", i, t.ID, err)
		}
	}
	return nil
}

func deleteTransaction(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM splits WHERE transaction_id = ?`, id); err != nil {
		return fmt.Errorf("delete splits of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

func putMonth(ctx context.Context, tx *sql.Tx, m core.MonthEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO months (key, income_source1, income_source2, savings_goal)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			income_source1 = excluded.income_source1,
			income_source2 = excluded.income_source2,
			savings_goal = excluded.savings_goal`,
		m.Key, m.IncomeSource1.String(), m.IncomeSource2.String(), m.SavingsGoal.String())
	if err != nil {
		return fmt.Errorf("put month %s: %w", m.Key, err)
	}

	// the month's structure is replaced wholesale
	for _, table := range []string{"month_categories", "month_subcategories", "sinking_fund_balances"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE month_key = ?`, m.Key); err != nil {
			return fmt.Errorf("clear %s for %s: %w", table, m.Key, err)
		}
	}

	pos := 0
	for i, c := range m.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO month_categories (month_key, id, name, position) VALUES (?, ?, ?, ?)`,
			m.Key, c.ID, c.Name, i); err != nil {
			return fmt.Errorf("put category %s: %w", c.ID, err)
		}
		for _, sc := range c.SubCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO month_subcategories (month_key, id, category_id, name,
				type, budgeted, linked_debt_id, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				m.Key, sc.ID, c.ID, sc.Name, string(sc.Type),
				sc.Budgeted.String(), sc.LinkedDebtID, pos); err != nil {
				return fmt.Errorf("put subcategory %s: %w", sc.ID, err)
			}
			pos++
		}
	}

	for id, balance := range m.SinkingFundBalances {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sinking_fund_balances (month_key, subcategory_id, balance)
			VALUES (?, ?, ?)`,
			m.Key, id, balance.String()); err != nil {
			return fmt.Errorf("put sinking fund balance %s: %w", id, err)
		}
	}
	return nil
}

func putRecurring(ctx context.Context, tx *sql.Tx, item core.RecurringItem) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO recurring_items (id, merchant, amount, day_of_month,
		subcategory_id, is_variable, pending_amount, last_paid_month)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant = excluded.merchant,
			amount = excluded.amount,
			day_of_month = excluded.day_of_month,
			subcategory_id = excluded.subcategory_id,
			is_variable = excluded.is_variable,
			pending_amount = excluded.pending_amount,
			last_paid_month = excluded.last_paid_month`,
		item.ID, item.Merchant, item.Amount.String(), item.DayOfMonth,
		item.SubCategoryID, boolInt(item.IsVariable),
		item.PendingAmount.String(), item.LastPaidMonth)
	if err != nil {
		return fmt.Errorf("put recurring item %s: %w", item.ID, err)
	}
	return nil
}

func parseDecText(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

func parseDateText(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func dateText(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.ISO()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
