package paytr

import (
	"context"
	"errors"
	"fmt"
	"log"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/feeproxy"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/utils"
	"anarchy.ttfm/paytr/vaults"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type (
	// RedeemTotal is the base asset expected back from a vault for the invoices escrowed in it
	RedeemTotal struct {
		Asset  string `json:"asset" yaml:"asset"`
		Vault  string `json:"vault" yaml:"vault"`
		Amount uint64 `json:"amount" yaml:"amount"`
	}
	// PayOut settles due invoices. Anyone may call it
	PayOut struct {
		Invoices []InvoiceKey
		// One per (asset, vault) present in Invoices
		Totals []RedeemTotal
	}
	Disbursement struct {
		Invoice    uuid.UUID  `json:"invoice"`
		Key        InvoiceKey `json:"key"`
		Amount     uint64     `json:"amount"`
		FeeAddress string     `json:"feeAddress,omitempty"`
		FeeAmount  uint64     `json:"feeAmount,omitempty"`
		// Receiver of the interest share, payee or payer depending on the controller
		InterestRecipient string `json:"interestRecipient"`
		Interest          uint64 `json:"interest"`
		// Principal and fee went through the fee proxy
		ViaProxy bool `json:"viaProxy,omitempty"`
		// Part of this disbursement that could not be delivered and waits in the owed ledger
		Owed uint64 `json:"owed,omitempty"`
	}
	GroupSettlement struct {
		Asset    string         `json:"asset"`
		Vault    string         `json:"vault"`
		Withdraw WithdrawResult `json:"withdraw"`
		// Principal plus fees of the group
		Escrow uint64 `json:"escrow"`
		// Received beyond Escrow
		Interest uint64 `json:"interest"`
		// Interest handed to invoices
		Distributed uint64 `json:"distributed"`
		// Deficit paid from the owner float
		Covered uint64 `json:"covered,omitempty"`
	}
	Settlement struct {
		Groups        []GroupSettlement `json:"groups"`
		Disbursements []Disbursement    `json:"disbursements"`
		// Interest retained by the controller: protocol cut and rounding dust
		ProtocolFloat uint64 `json:"protocolFloat"`
	}
)

type group struct {
	asset    string
	vault    string
	invoices []*Invoice
	escrow   uint64
	amounts  uint64
	shares   uint64
	total    uint64
}

func groupKey(asset, vault string) string { return asset + "|" + vault }

func (g *group) add(invoice *Invoice) (err error) {
	escrow, err := utils.Sum(g.escrow, invoice.Escrow())
	if err != nil {
		return invalid("invoices", "escrow of %s overflows", g.vault)
	}
	amounts, err := utils.Sum(g.amounts, invoice.Amount)
	if err != nil {
		return invalid("invoices", "principal of %s overflows", g.vault)
	}
	shares, err := utils.Sum(g.shares, invoice.Shares)
	if err != nil {
		return invalid("invoices", "shares of %s overflow", g.vault)
	}
	g.invoices = append(g.invoices, invoice)
	g.escrow, g.amounts, g.shares = escrow, amounts, shares
	return nil
}

// redeemable is the value of the shares escrowed by the group, never less than its escrow.
// Shares of other invoices held in the same vault are out of reach
func (c *Controller) redeemable(ctx context.Context, g *group) (amount uint64, err error) {
	vault, err := c.vault(g.vault)
	if err != nil {
		return 0, err
	}
	preview, err := vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: g.shares})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to preview redeem: %w", ErrVaultRejected, err)
	}
	return max(preview.Amount, g.escrow), nil
}

// collect loads the live records of the batch and flags them redeemed
func (c *Controller) collect(txn *badger.Txn, req *PayOut) (invoices []*Invoice, groups []*group, err error) {
	params, err := loadParameters(txn)
	if err != nil {
		return nil, nil, err
	}
	if len(req.Invoices) == 0 {
		return nil, nil, invalid("invoices", "empty batch")
	}
	if uint64(len(req.Invoices)) > params.MaxPayoutArraySize {
		return nil, nil, fmt.Errorf("%w: %d invoices, at most %d", ErrBatchTooLarge, len(req.Invoices), params.MaxPayoutArraySize)
	}

	now := c.now()
	seen := make(map[string]struct{}, len(req.Invoices))
	byKey := make(map[string]*group)
	for _, raw := range req.Invoices {
		key, err := raw.Normalize()
		if err != nil {
			return nil, nil, err
		}
		if _, found := seen[key.Hash()]; found {
			return nil, nil, invalid("invoices", "%s repeated", key)
		}
		seen[key.Hash()] = struct{}{}

		invoice, found, err := liveRecord(txn, key)
		if err != nil {
			return nil, nil, err
		}
		if !found {
			records, err := history(txn, key)
			if err != nil {
				return nil, nil, err
			}
			if len(records) > 0 {
				return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyRedeemed, key)
			}
			return nil, nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, key)
		}

		err = markRedeemed(txn, now, &invoice)
		if err != nil {
			return nil, nil, err
		}
		_, err = activeVault(txn, invoice.Vault)
		if err != nil {
			return nil, nil, err
		}

		g, found := byKey[groupKey(invoice.Asset, invoice.Vault)]
		if !found {
			g = &group{asset: invoice.Asset, vault: invoice.Vault}
			byKey[groupKey(invoice.Asset, invoice.Vault)] = g
			groups = append(groups, g)
		}
		err = g.add(&invoice)
		if err != nil {
			return nil, nil, err
		}
		invoices = append(invoices, &invoice)
	}

	for _, total := range req.Totals {
		g, found := byKey[groupKey(tokens.NormalizeAddress(total.Asset), tokens.NormalizeAddress(total.Vault))]
		switch {
		case !found:
			return nil, nil, invalid("totals", "no invoice in batch for %s in %s", total.Asset, total.Vault)
		case g.total != 0:
			return nil, nil, invalid("totals", "repeated for %s in %s", total.Asset, total.Vault)
		case total.Amount < g.escrow:
			return nil, nil, invalid("totals", "%d below escrow %d of %s", total.Amount, g.escrow, total.Vault)
		}
		g.total = total.Amount
	}
	for _, g := range groups {
		if g.total == 0 {
			return nil, nil, invalid("totals", "missing for %s in %s", g.asset, g.vault)
		}
	}
	return invoices, groups, nil
}

// PayOut settles a batch of due invoices. Records are flagged redeemed before any funds move.
// If a vault can't return the escrow of its group, and the owner float can't cover it, the batch
// is reverted and ErrVaultShortfall returned. Transfers that fail after that are credited to the
// owed ledger of their recipient
func (c *Controller) PayOut(ctx context.Context, req *PayOut) (settlement Settlement, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return settlement, err
	}
	defer leave()

	var invoices []*Invoice
	var groups []*group
	var params Parameters
	var owedTotal uint64
	err = c.db.Update(func(txn *badger.Txn) (err error) {
		params, err = loadParameters(txn)
		if err != nil {
			return err
		}
		owedTotal, err = getUint64(txn, owedTotalKey)
		if err != nil {
			return fmt.Errorf("failed to load owed total: %w", err)
		}
		invoices, groups, err = c.collect(txn, req)
		return err
	})
	if err != nil {
		return settlement, err
	}

	for _, g := range groups {
		limit, err := c.redeemable(ctx, g)
		if err != nil {
			c.revertPayout(ctx, groups, nil)
			return settlement, err
		}
		if g.total > limit {
			c.revertPayout(ctx, groups, nil)
			return settlement, invalid("totals", "%d above redeemable %d of %s", g.total, limit, g.vault)
		}
	}

	balance, err := c.tokenBalance(ctx)
	if err != nil {
		c.revertPayout(ctx, groups, nil)
		return settlement, err
	}
	var float uint64
	if balance > owedTotal {
		float = balance - owedTotal
	}

	results := make([]WithdrawResult, 0, len(groups))
	for _, g := range groups {
		vault, err := c.vault(g.vault)
		if err != nil {
			c.revertPayout(ctx, groups, results)
			return settlement, err
		}
		result, err := c.withdraw(ctx, vault, g.total)
		if err != nil {
			c.revertPayout(ctx, groups, results)
			return settlement, err
		}
		results = append(results, result)

		gs := GroupSettlement{Asset: g.asset, Vault: g.vault, Withdraw: result, Escrow: g.escrow}
		if result.Received < g.escrow {
			deficit := g.escrow - result.Received
			if deficit > float {
				c.revertPayout(ctx, groups, results)
				return Settlement{}, fmt.Errorf("%w: %s returned %d for an escrow of %d", ErrVaultShortfall, g.vault, result.Received, g.escrow)
			}
			float -= deficit
			gs.Covered = deficit
		} else {
			gs.Interest = result.Received - g.escrow
		}
		settlement.Groups = append(settlement.Groups, gs)
	}

	shares := make(map[uuid.UUID]uint64, len(invoices))
	for i, g := range groups {
		gs := &settlement.Groups[i]
		distributable, err := utils.MulDiv(gs.Interest, params.FeeModifier, FeeModifierScale)
		if err != nil {
			c.revertPayout(ctx, groups, results)
			return Settlement{}, fmt.Errorf("failed to compute distributable interest: %w", err)
		}
		for _, invoice := range g.invoices {
			share, err := utils.MulDiv(distributable, invoice.Amount, g.amounts)
			if err != nil {
				c.revertPayout(ctx, groups, results)
				return Settlement{}, fmt.Errorf("failed to compute interest share: %w", err)
			}
			shares[invoice.Id] = share
			gs.Distributed += share
		}
		settlement.ProtocolFloat += gs.Interest - gs.Distributed
	}

	type credit struct {
		address string
		amount  uint64
		invoice *Invoice
	}
	var credits []credit
	for _, invoice := range invoices {
		d := Disbursement{
			Invoice:           invoice.Id,
			Key:               invoice.Key(),
			Amount:            invoice.Amount,
			FeeAddress:        invoice.FeeAddress,
			FeeAmount:         invoice.FeeAmount,
			InterestRecipient: invoice.Payee,
			Interest:          shares[invoice.Id],
		}
		if c.interestRecipient == InterestToPayer {
			d.InterestRecipient = invoice.Payer
		}

		delivered := false
		if invoice.FeeAmount > 0 {
			delivered, err = c.sendViaProxy(ctx, invoice)
			if err != nil {
				log.Println("ERROR|PAYOUT|PROXY", invoice.Id, err)
			}
			d.ViaProxy = delivered
		}
		if !delivered {
			if err := c.send(ctx, invoice.Payee, invoice.Amount); err != nil {
				log.Println("ERROR|PAYOUT|PAYEE", invoice.Id, err)
				credits = append(credits, credit{invoice.Payee, invoice.Amount, invoice})
				d.Owed += invoice.Amount
			}
			if err := c.send(ctx, invoice.FeeAddress, invoice.FeeAmount); err != nil {
				log.Println("ERROR|PAYOUT|FEE", invoice.Id, err)
				credits = append(credits, credit{invoice.FeeAddress, invoice.FeeAmount, invoice})
				d.Owed += invoice.FeeAmount
			}
		}
		if err := c.send(ctx, d.InterestRecipient, d.Interest); err != nil {
			log.Println("ERROR|PAYOUT|INTEREST", invoice.Id, err)
			credits = append(credits, credit{d.InterestRecipient, d.Interest, invoice})
			d.Owed += d.Interest
		}
		settlement.Disbursements = append(settlement.Disbursements, d)
	}

	err = c.update(ctx, func(tx *tx) (err error) {
		for _, credit := range credits {
			err = creditOwed(tx, credit.address, credit.amount, credit.invoice)
			if err != nil {
				return err
			}
		}
		for i, invoice := range invoices {
			d := settlement.Disbursements[i]
			tx.emit(events.Event{
				Kind:       events.KindPayout,
				Invoice:    invoice.Id.String(),
				Payer:      invoice.Payer,
				Payee:      invoice.Payee,
				Reference:  invoice.Reference,
				Amount:     invoice.Amount,
				FeeAmount:  invoice.FeeAmount,
				FeeAddress: invoice.FeeAddress,
				Vault:      invoice.Vault,
			})
			if d.Interest > 0 {
				tx.emit(events.Event{
					Kind:      events.KindInterestPayout,
					Invoice:   invoice.Id.String(),
					Reference: invoice.Reference,
					Recipient: d.InterestRecipient,
					Amount:    d.Interest,
				})
			}
		}
		return nil
	})
	if err != nil {
		return settlement, fmt.Errorf("failed to record payout: %w", err)
	}
	return settlement, nil
}

func (c *Controller) send(ctx context.Context, to string, amount uint64) (err error) {
	if amount == 0 {
		return nil
	}
	_, err = c.token.Transfer(ctx, tokens.TransferRequest{From: c.account, To: to, Amount: amount})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return nil
}

// sendViaProxy delivers principal and fee through the fee proxy when the fee address is allow-listed
func (c *Controller) sendViaProxy(ctx context.Context, invoice *Invoice) (delivered bool, err error) {
	if c.proxy == nil {
		return false, nil
	}
	var allowed bool
	err = c.db.View(func(txn *badger.Txn) (err error) {
		allowed, err = isFeeRouting(txn, invoice.FeeAddress)
		return err
	})
	if err != nil || !allowed {
		return false, err
	}

	err = c.token.Approve(ctx, tokens.ApproveRequest{Owner: c.account, Spender: c.proxy.Address(), Amount: invoice.Escrow()})
	if err != nil {
		return false, fmt.Errorf("failed to approve fee proxy: %w", err)
	}
	_, err = c.proxy.TransferWithReferenceAndFee(ctx, feeproxy.TransferRequest{
		Sender:     c.account,
		Token:      invoice.Asset,
		To:         invoice.Payee,
		Amount:     invoice.Amount,
		Reference:  invoice.Reference,
		FeeAmount:  invoice.FeeAmount,
		FeeAddress: invoice.FeeAddress,
	})
	if err != nil {
		rerr := c.token.Approve(ctx, tokens.ApproveRequest{Owner: c.account, Spender: c.proxy.Address(), Amount: 0})
		return false, errors.Join(fmt.Errorf("failed to forward through fee proxy: %w", err), rerr)
	}
	return true, nil
}

// revertPayout returns what was withdrawn for the first len(results) groups to their vaults and
// makes every record of the batch live again
func (c *Controller) revertPayout(ctx context.Context, groups []*group, results []WithdrawResult) {
	for i, result := range results {
		if result.Received == 0 {
			continue
		}
		g := groups[i]
		vault, err := c.vault(g.vault)
		if err != nil {
			log.Println("ERROR|PAYOUT|RESUPPLY", g.vault, err)
			continue
		}
		shares, err := c.deposit(ctx, vault, result.Received)
		if err != nil {
			log.Println("ERROR|PAYOUT|RESUPPLY", g.vault, err)
			continue
		}

		// Spread the new shares over the records pro rata of their escrow
		remaining := shares
		for j, invoice := range g.invoices {
			if j == len(g.invoices)-1 {
				invoice.Shares = remaining
				break
			}
			share, err := utils.MulDiv(shares, invoice.Escrow(), g.escrow)
			if err != nil {
				share = 0
			}
			invoice.Shares = share
			remaining -= share
		}
	}

	err := c.db.Update(func(txn *badger.Txn) (err error) {
		for _, g := range groups {
			for _, invoice := range g.invoices {
				err = unmarkRedeemed(txn, invoice)
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Println("ERROR|PAYOUT|REVERT", err)
	}
}
