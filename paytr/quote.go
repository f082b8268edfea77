package paytr

import (
	"context"
	"fmt"
	"log"

	"anarchy.ttfm/paytr/utils"
	"anarchy.ttfm/paytr/vaults"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Quote computes the totals PayOut expects for a batch: per (asset, vault) the value of the
// escrowed shares, never less than the escrow itself
func (c *Controller) Quote(ctx context.Context, keys []InvoiceKey) (totals []RedeemTotal, err error) {
	var groups []*group
	err = c.db.View(func(txn *badger.Txn) (err error) {
		byKey := make(map[string]*group)
		for _, raw := range keys {
			key, err := raw.Normalize()
			if err != nil {
				return err
			}
			invoice, found, err := liveRecord(txn, key)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%w: %s", ErrInvoiceNotFound, key)
			}

			g, found := byKey[groupKey(invoice.Asset, invoice.Vault)]
			if !found {
				g = &group{asset: invoice.Asset, vault: invoice.Vault}
				byKey[groupKey(invoice.Asset, invoice.Vault)] = g
				groups = append(groups, g)
			}
			err = g.add(&invoice)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		amount, err := c.redeemable(ctx, g)
		if err != nil {
			return nil, err
		}
		totals = append(totals, RedeemTotal{Asset: g.asset, Vault: g.vault, Amount: amount})
	}
	return totals, nil
}

// streamDue streams live records whose due date passed. Both channels must be consumed
func (c *Controller) streamDue() (invoices chan Invoice, errChan chan error) {
	invoices = make(chan Invoice, 1_000)
	errChan = make(chan error, 1)
	now := c.now()
	go func() {
		defer close(invoices)
		defer close(errChan)

		errChan <- c.db.View(func(txn *badger.Txn) (err error) {
			options := badger.DefaultIteratorOptions
			options.Prefix = livePrefix
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Rewind(); it.ValidForPrefix(livePrefix); it.Next() {
				var invoice Invoice
				err = it.Item().Value(func(val []byte) (err error) {
					id, err := uuid.FromBytes(val)
					if err != nil {
						return err
					}
					invoice, err = loadRecord(txn, id)
					return err
				})
				if err != nil {
					log.Println("ERROR|DUE|RECORD", string(it.Item().Key()), err)
					continue
				}
				if invoice.IsDue(now) {
					invoices <- invoice
				}
			}
			return nil
		})
	}()
	return invoices, errChan
}

// Due lists live invoices whose due date passed, at most limit of them (0 for all)
func (c *Controller) Due(ctx context.Context, limit int) (due []Invoice, err error) {
	invoices, errChan := c.streamDue()
	defer utils.ConsumeChannel(errChan)

	for invoice := range invoices {
		if limit > 0 && len(due) >= limit {
			break
		}
		due = append(due, invoice)
	}
	utils.ConsumeChannel(invoices)

	err = <-errChan
	if err != nil {
		return nil, fmt.Errorf("failed to list due invoices: %w", err)
	}
	return due, nil
}

// SupplyRate queries the current supply rate of an allow-listed vault
func (c *Controller) SupplyRate(ctx context.Context, address string, utilization uint64) (rate vaults.SupplyRate, err error) {
	_, err = c.Vault(ctx, address)
	if err != nil {
		return rate, err
	}
	vault, err := c.vault(address)
	if err != nil {
		return rate, err
	}
	rate, err = vault.SupplyRate(ctx, vaults.SupplyRateRequest{Utilization: utilization})
	if err != nil {
		return rate, fmt.Errorf("%w: failed to query supply rate: %w", ErrVaultRejected, err)
	}
	return rate, nil
}
