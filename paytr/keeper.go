package paytr

import (
	"context"
	"fmt"
	"log"

	"anarchy.ttfm/paytr/utils"
)

// ProcessDue pays out every due invoice in batches of MaxPayoutArraySize. A failing batch is
// logged and skipped, the following ones are still processed
func (c *Controller) ProcessDue(ctx context.Context) (processed uint64, err error) {
	params, err := c.Parameters(ctx)
	if err != nil {
		return 0, err
	}

	due, err := c.Due(ctx, 0)
	if err != nil {
		return 0, err
	}

	keys := make([]InvoiceKey, 0, len(due))
	for _, invoice := range due {
		keys = append(keys, invoice.Key())
	}

	for _, batch := range utils.Chunk(keys, int(params.MaxPayoutArraySize)) {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		totals, err := c.Quote(ctx, batch)
		if err != nil {
			log.Println("ERROR|KEEPER|QUOTE", err)
			continue
		}
		settlement, err := c.PayOut(ctx, &PayOut{Invoices: batch, Totals: totals})
		if err != nil {
			log.Println("ERROR|KEEPER|PAYOUT", err)
			continue
		}
		processed += uint64(len(settlement.Disbursements))
		log.Println("[*] Paid out", settlement.String())
	}
	return processed, nil
}

// String summarises a settlement for logs
func (s *Settlement) String() string {
	return fmt.Sprintf("%d groups, %d invoices, %d float", len(s.Groups), len(s.Disbursements), s.ProtocolFloat)
}
