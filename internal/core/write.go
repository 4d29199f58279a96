package core

// WriteKind discriminates the entries of a write list.
type WriteKind string

const (
	WritePutAccount        WriteKind = "put_account"
	WritePutDebt           WriteKind = "put_debt"
	WritePutTransaction    WriteKind = "put_transaction"
	WriteDeleteTransaction WriteKind = "delete_transaction"
	WritePutMonth          WriteKind = "put_month"
	WritePutRecurring      WriteKind = "put_recurring"
	WriteCompleteSetup     WriteKind = "complete_setup"
)

// Write is one intended mutation of persisted state. Engines return write
// lists; the repository commits a whole list atomically, and in-memory state
// is replaced only after that commit is confirmed.
type Write struct {
	Kind          WriteKind
	Account       *Account
	Debt          *Debt
	Transaction   *Transaction
	TransactionID string // delete only
	Month         *MonthEntry
	Recurring     *RecurringItem
}

func PutAccount(a Account) Write     { return Write{Kind: WritePutAccount, Account: &a} }
func PutDebt(d Debt) Write           { return Write{Kind: WritePutDebt, Debt: &d} }
func PutTransaction(t Transaction) Write {
	return Write{Kind: WritePutTransaction, Transaction: &t}
}
func DeleteTransaction(id string) Write {
	return Write{Kind: WriteDeleteTransaction, TransactionID: id}
}
func PutMonth(m MonthEntry) Write        { return Write{Kind: WritePutMonth, Month: &m} }
func PutRecurring(r RecurringItem) Write { return Write{Kind: WritePutRecurring, Recurring: &r} }

// CompleteSetup marks the budget's first-run setup as finished. Rollover
// stays inert until this write lands.
func CompleteSetup() Write { return Write{Kind: WriteCompleteSetup} }
