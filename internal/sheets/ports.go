// Package sheets defines the outbound ports for the transaction mirror.
package sheets

import "context"

// TransactionWriter appends committed transaction rows, in the export column
// order, to an external mirror.
type TransactionWriter interface {
	AppendRows(ctx context.Context, rows [][]string) (rowRef string, err error)
}
