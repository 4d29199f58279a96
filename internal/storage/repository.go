// Package storage persists the budget snapshot and its transaction history.
package storage

import (
	"context"
	"errors"

	"tally/internal/core"
)

// ErrNotFound is returned when a transaction id has no row.
var ErrNotFound = errors.New("transaction not found")

// Repository is the persistence port the services commit through. SaveBatch
// applies a whole write list atomically; callers replace their in-memory
// state only after it returns nil.
type Repository interface {
	// Load reads the full budget snapshot. The category template on the
	// returned state is the structure of the newest month.
	Load(ctx context.Context) (core.BudgetState, error)

	// SaveBatch commits the write list in one transaction. On error nothing
	// is applied.
	SaveBatch(ctx context.Context, writes []core.Write) error

	// Transactions returns the transactions of one month ("YYYY-MM" key),
	// or all of them when the key is empty. ISO dates sort lexically, so
	// the scan is a plain prefix match.
	Transactions(ctx context.Context, monthKey string) ([]core.Transaction, error)

	// Transaction returns one transaction by id, or ErrNotFound.
	Transaction(ctx context.Context, id string) (core.Transaction, error)

	// Subscribe registers fn to run after every successful SaveBatch with
	// the writes that were committed.
	Subscribe(fn func([]core.Write))

	Close() error
}
