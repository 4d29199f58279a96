// Package worker mirrors committed transactions to the external sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/importer"
	"tally/internal/sheets"
	"tally/internal/storage"
)

// Store is the slice of the repository the mirror needs: current rows, the
// unmirrored backlog, and the snapshot for resolving names.
type Store interface {
	Load(ctx context.Context) (core.BudgetState, error)
	Transaction(ctx context.Context, id string) (core.Transaction, error)
	PendingMirror(ctx context.Context, limit int) ([]core.Transaction, error)
	MarkMirrored(ctx context.Context, id string) error
}

// MirrorWorker appends committed transactions to the sheet mirror in the
// export row format. Commit messages carry only the transaction id; the
// worker re-fetches the row, so a stale message never mirrors stale data.
type MirrorWorker struct {
	store     Store
	sheet     sheets.TransactionWriter
	batchSize int
}

func NewMirrorWorker(store Store, sheet sheets.TransactionWriter, batchSize int) *MirrorWorker {
	return &MirrorWorker{
		store:     store,
		sheet:     sheet,
		batchSize: batchSize,
	}
}

// HandleCommitMessage mirrors the transaction named by one AMQP message. A
// transaction deleted before the message arrives is skipped, not an error.
func (w *MirrorWorker) HandleCommitMessage(ctx context.Context, msg *amqp.TransactionCommittedMessage) error {
	tx, err := w.store.Transaction(ctx, msg.TransactionID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Transaction gone before mirror, skipping",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction: %w", err)
	}
	return w.mirror(ctx, tx)
}

// ProcessPending sweeps up to batchSize unmirrored transactions. This is
// the backstop for lost commit messages; failures are logged per row and
// retried on the next sweep.
func (w *MirrorWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.store.PendingMirror(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Mirroring pending transactions", "count", len(pending))
	for _, tx := range pending {
		if err := w.mirror(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction",
				"transaction_id", tx.ID, "error", err)
		}
	}
	return nil
}

// StartupBacklogCheck drains the backlog accumulated while the worker was
// down, in larger batches than the periodic sweep.
func (w *MirrorWorker) StartupBacklogCheck(ctx context.Context) error {
	pending, err := w.store.PendingMirror(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("load startup backlog: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No mirror backlog on startup")
		return nil
	}

	slog.InfoContext(ctx, "Draining mirror backlog", "count", len(pending))
	mirrored, failed := 0, 0
	for _, tx := range pending {
		if err := w.mirror(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror backlog transaction",
				"transaction_id", tx.ID, "error", err)
			failed++
			continue
		}
		mirrored++
	}
	slog.InfoContext(ctx, "Mirror backlog drained",
		"mirrored", mirrored, "failed", failed)
	return nil
}

func (w *MirrorWorker) mirror(ctx context.Context, tx core.Transaction) error {
	state, err := w.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state for name resolution: %w", err)
	}

	rows := importer.ExportRows([]core.Transaction{tx}, state)
	ref, err := w.sheet.AppendRows(ctx, rows)
	if err != nil {
		return fmt.Errorf("append to sheet: %w", err)
	}
	if err := w.store.MarkMirrored(ctx, tx.ID); err != nil {
		// the append landed; an unmarked row only re-mirrors later
		slog.ErrorContext(ctx, "Failed to mark transaction mirrored",
			"transaction_id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Transaction mirrored",
		"transaction_id", tx.ID,
		"sheets_ref", ref,
		"rows", len(rows))
	return nil
}
