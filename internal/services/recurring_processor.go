package services

import (
	"context"
	"fmt"

	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/schedule"
)

// RecurringProcessor drives the calendar-dependent work on a periodic tick:
// maintenance (compounding catch-up, month rollover) and recurring bill
// emission. Emission is idempotent per month via lastPaidMonth, so the tick
// interval only affects latency, never correctness.
type RecurringProcessor struct {
	ledger           *LedgerService
	defaultAccountID string
	logger           *log.Logger
}

func NewRecurringProcessor(ledgerSvc *LedgerService, defaultAccountID string, logger *log.Logger) *RecurringProcessor {
	return &RecurringProcessor{
		ledger:           ledgerSvc,
		defaultAccountID: defaultAccountID,
		logger:           logger.WithComponent(log.ComponentSchedule),
	}
}

// Tick processes everything due as of today and returns how many recurring
// bills were emitted. A failed emission is logged and skipped; the item
// stays unstamped and retries on the next tick.
func (p *RecurringProcessor) Tick(ctx context.Context, today core.Date) (int, error) {
	if err := p.ledger.RunMaintenance(ctx, today); err != nil {
		return 0, fmt.Errorf("run maintenance: %w", err)
	}

	state := p.ledger.State()
	emissions := schedule.DueEmissions(state.Recurring, today, p.defaultAccountID)
	if len(emissions) == 0 {
		return 0, nil
	}

	emitted := 0
	for _, em := range emissions {
		if err := p.ledger.CommitEmission(ctx, em); err != nil {
			p.logger.ErrorContext(ctx, "Failed to emit recurring bill",
				log.FieldMerchant, em.Item.Merchant,
				log.FieldError, err)
			continue
		}
		emitted++
		p.logger.InfoContext(ctx, "Recurring bill emitted",
			log.FieldTransactionID, em.Tx.ID,
			log.FieldMerchant, em.Tx.Merchant,
			log.FieldAmount, em.Tx.Amount.StringFixed(2))
	}
	return emitted, nil
}
