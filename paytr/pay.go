package paytr

import (
	"context"
	"fmt"
	"log"
	"math"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/vaults"
	badger "github.com/dgraph-io/badger/v4"
)

type (
	PayInvoice struct {
		// Payer. It must have approved the controller account for the whole escrow
		From string
		// Must be the base asset
		Asset string
		Payee string
		// Unix seconds, 0 to set it later with AmendDueDate
		DueDate int64
		// Principal in base asset minor units
		Amount uint64
		// 0x prefixed hex bytes
		Reference string
		// Vault escrowing the funds, the default vault when empty
		Vault string
	}
	PayInvoiceWithFee struct {
		PayInvoice
		// Escrowed with the principal and delivered on payout
		FeeAmount uint64
		// Receiver of the fee, the default fee routing address when empty
		FeeAddress string
	}
)

// PayInvoice escrows an invoice without fee
func (c *Controller) PayInvoice(ctx context.Context, req *PayInvoice) (invoice Invoice, err error) {
	return c.pay(ctx, req, 0, "")
}

// PayInvoiceWithFee escrows an invoice and the fee owed to a third party
func (c *Controller) PayInvoiceWithFee(ctx context.Context, req *PayInvoiceWithFee) (invoice Invoice, err error) {
	if req.FeeAmount == 0 {
		return invoice, invalid("feeAmount", "must be positive, use PayInvoice otherwise")
	}
	return c.pay(ctx, &req.PayInvoice, req.FeeAmount, req.FeeAddress)
}

// pay commits the record before moving any funds. When the funds can't be escrowed the record
// is discarded again so the caller observes no change
func (c *Controller) pay(ctx context.Context, req *PayInvoice, feeAmount uint64, feeAddress string) (invoice Invoice, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return invoice, err
	}
	defer leave()

	err = c.checkAsset(req.Asset)
	if err != nil {
		return invoice, err
	}
	if feeAmount > math.MaxUint64-req.Amount {
		return invoice, invalid("feeAmount", "escrow overflows")
	}
	key, err := InvoiceKey{Payer: req.From, Payee: req.Payee, Reference: req.Reference}.Normalize()
	if err != nil {
		return invoice, err
	}
	if tokens.IsZeroAddress(key.Payer) {
		return invoice, invalid("from", "zero address")
	}

	vaultAddress := tokens.NormalizeAddress(req.Vault)
	if vaultAddress == "" {
		vaultAddress = c.defaultVault
	}
	vault, err := c.vault(vaultAddress)
	if err != nil {
		return invoice, err
	}

	invoice = Invoice{
		Reference: key.Reference,
		Amount:    req.Amount,
		FeeAmount: feeAmount,
		DueDate:   req.DueDate,
		Payer:     key.Payer,
		Payee:     key.Payee,
		Asset:     c.token.Address(),
		Vault:     vaultAddress,
	}
	if feeAmount > 0 {
		invoice.FeeAddress = tokens.NormalizeAddress(feeAddress)
	}

	err = c.db.Update(func(txn *badger.Txn) (err error) {
		if feeAmount > 0 && invoice.FeeAddress == "" {
			invoice.FeeAddress, err = defaultFeeRouting(txn)
			if err != nil {
				return fmt.Errorf("failed to load default fee routing address: %w", err)
			}
		}
		return create(txn, c.now(), &invoice)
	})
	if err != nil {
		return invoice, err
	}

	escrow := invoice.Escrow()
	_, err = c.token.TransferFrom(ctx, tokens.TransferFromRequest{
		Spender: c.account,
		From:    invoice.Payer,
		To:      c.account,
		Amount:  escrow,
	})
	if err != nil {
		c.rollbackPayment(ctx, &invoice, false)
		return Invoice{}, fmt.Errorf("%w: failed to collect escrow: %w", ErrTransferFailed, err)
	}

	shares, err := c.deposit(ctx, vault, escrow)
	if err != nil {
		c.rollbackPayment(ctx, &invoice, true)
		return Invoice{}, fmt.Errorf("failed to deposit escrow: %w", err)
	}

	kind := events.KindPayment
	if feeAmount > 0 {
		kind = events.KindPaymentWithFee
	}
	invoice.Shares = shares
	err = c.update(ctx, func(tx *tx) (err error) {
		err = saveRecord(tx.Txn, &invoice)
		if err != nil {
			return err
		}
		tx.emit(events.Event{
			Kind:       kind,
			Invoice:    invoice.Id.String(),
			Payer:      invoice.Payer,
			Payee:      invoice.Payee,
			Reference:  invoice.Reference,
			Amount:     invoice.Amount,
			FeeAmount:  invoice.FeeAmount,
			FeeAddress: invoice.FeeAddress,
			DueDate:    invoice.DueDate,
			Vault:      invoice.Vault,
			Shares:     shares,
		})
		return nil
	})
	if err != nil {
		log.Println("ERROR|PAY|SHARES", invoice.Id, err)
		c.releasePayment(ctx, vault, &invoice)
		return Invoice{}, fmt.Errorf("failed to record escrowed shares: %w", err)
	}
	return invoice, nil
}

// releasePayment takes back a deposit whose shares couldn't be recorded and rolls the payment back.
// When the vault refuses, the record stays live so a payout can still release the escrow
func (c *Controller) releasePayment(ctx context.Context, vault vaults.Vault, invoice *Invoice) {
	result, err := c.withdraw(ctx, vault, invoice.Escrow())
	if err != nil {
		log.Println("ERROR|PAY|RELEASE", invoice.Id, err)
		return
	}
	if result.Shortfall > 0 {
		log.Println("ERROR|PAY|RELEASE", invoice.Id, "shortfall", result.Shortfall)
	}
	c.rollbackPayment(ctx, invoice, true)
}

// rollbackPayment discards the record of a failed payment, returning the escrow when it was collected
func (c *Controller) rollbackPayment(ctx context.Context, invoice *Invoice, refund bool) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return discard(txn, invoice)
	})
	if err != nil {
		log.Println("ERROR|PAY|ROLLBACK", invoice.Id, err)
	}
	if !refund {
		return
	}

	_, err = c.token.Transfer(ctx, tokens.TransferRequest{
		From:   c.account,
		To:     invoice.Payer,
		Amount: invoice.Escrow(),
	})
	if err == nil {
		return
	}
	log.Println("ERROR|PAY|REFUND", invoice.Id, err)
	err = c.update(ctx, func(tx *tx) error {
		return creditOwed(tx, invoice.Payer, invoice.Escrow(), invoice)
	})
	if err != nil {
		log.Println("ERROR|PAY|OWED", invoice.Id, err)
	}
}
