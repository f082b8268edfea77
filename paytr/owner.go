package paytr

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/vaults"
	badger "github.com/dgraph-io/badger/v4"
)

func loadOwner(txn *badger.Txn) (owner string, err error) {
	err = getValue(txn, ownerKey, func(val []byte) error {
		owner = string(val)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to load owner: %w", err)
	}
	return owner, nil
}

func (c *Controller) onlyOwner(txn *badger.Txn, from string) (err error) {
	owner, err := loadOwner(txn)
	if err != nil {
		return err
	}
	if tokens.NormalizeAddress(from) != owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, from)
	}
	return nil
}

// Owner returns the current owner
func (c *Controller) Owner(ctx context.Context) (owner string, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		owner, err = loadOwner(txn)
		return err
	})
	return owner, err
}

// TransferOwnership hands every owner operation to newOwner
func (c *Controller) TransferOwnership(ctx context.Context, from, newOwner string) (err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	newOwner = tokens.NormalizeAddress(newOwner)
	return c.update(ctx, func(tx *tx) (err error) {
		err = c.onlyOwner(tx.Txn, from)
		if err != nil {
			return err
		}
		if tokens.IsZeroAddress(newOwner) {
			return invalid("newOwner", "zero address")
		}
		err = tx.Set(ownerKey, []byte(newOwner))
		if err != nil {
			return fmt.Errorf("failed to save owner: %w", err)
		}
		tx.emit(events.Event{Kind: events.KindOwnershipChanged, Recipient: newOwner})
		return nil
	})
}

// creditOwed records base asset that could not be delivered so the recipient can pull it later
func creditOwed(tx *tx, address string, amount uint64, invoice *Invoice) (err error) {
	if amount == 0 {
		return nil
	}

	owed, err := getUint64(tx.Txn, owedKey(address))
	if err != nil {
		return fmt.Errorf("failed to load owed balance: %w", err)
	}
	total, err := getUint64(tx.Txn, owedTotalKey)
	if err != nil {
		return fmt.Errorf("failed to load owed total: %w", err)
	}
	err = setUint64(tx.Txn, owedKey(address), owed+amount)
	if err != nil {
		return fmt.Errorf("failed to save owed balance: %w", err)
	}
	err = setUint64(tx.Txn, owedTotalKey, total+amount)
	if err != nil {
		return fmt.Errorf("failed to save owed total: %w", err)
	}

	event := events.Event{Kind: events.KindOwedCredited, Recipient: address, Amount: amount}
	if invoice != nil {
		event.Invoice = invoice.Id.String()
	}
	tx.emit(event)
	return nil
}

// Owed returns the undelivered base asset claimable by address
func (c *Controller) Owed(ctx context.Context, address string) (amount uint64, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		amount, err = getUint64(txn, owedKey(tokens.NormalizeAddress(address)))
		return err
	})
	return amount, err
}

// ClaimOwed delivers to from what payouts failed to send it
func (c *Controller) ClaimOwed(ctx context.Context, from string) (amount uint64, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer leave()

	from = tokens.NormalizeAddress(from)
	err = c.db.Update(func(txn *badger.Txn) (err error) {
		amount, err = getUint64(txn, owedKey(from))
		if err != nil {
			return fmt.Errorf("failed to load owed balance: %w", err)
		}
		if amount == 0 {
			return ErrNothingOwed
		}
		total, err := getUint64(txn, owedTotalKey)
		if err != nil {
			return fmt.Errorf("failed to load owed total: %w", err)
		}
		err = txn.Delete(owedKey(from))
		if err != nil {
			return fmt.Errorf("failed to clear owed balance: %w", err)
		}
		return setUint64(txn, owedTotalKey, total-min(total, amount))
	})
	if err != nil {
		return 0, err
	}

	_, err = c.token.Transfer(ctx, tokens.TransferRequest{From: c.account, To: from, Amount: amount})
	if err != nil {
		rerr := c.update(ctx, func(tx *tx) error {
			return creditOwed(tx, from, amount, nil)
		})
		if rerr != nil {
			return 0, fmt.Errorf("%w: %w (restore failed: %v)", ErrTransferFailed, err, rerr)
		}
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	err = c.update(ctx, func(tx *tx) error {
		tx.emit(events.Event{Kind: events.KindOwedClaimed, Recipient: from, Amount: amount})
		return nil
	})
	return amount, err
}

// ClaimBaseAssetBalance sends the owner float to the owner. Balances owed to payout recipients stay
func (c *Controller) ClaimBaseAssetBalance(ctx context.Context, from string) (claimed uint64, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return 0, err
	}
	defer leave()

	var owner string
	var owed uint64
	err = c.db.View(func(txn *badger.Txn) (err error) {
		err = c.onlyOwner(txn, from)
		if err != nil {
			return err
		}
		owner, err = loadOwner(txn)
		if err != nil {
			return err
		}
		owed, err = getUint64(txn, owedTotalKey)
		return err
	})
	if err != nil {
		return 0, err
	}

	balance, err := c.tokenBalance(ctx)
	if err != nil {
		return 0, err
	}
	if balance <= owed {
		return 0, nil
	}
	claimed = balance - owed

	_, err = c.token.Transfer(ctx, tokens.TransferRequest{From: c.account, To: owner, Amount: claimed})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	err = c.update(ctx, func(tx *tx) error {
		tx.emit(events.Event{Kind: events.KindBaseAssetClaimed, Recipient: owner, Amount: claimed, Token: c.token.Address()})
		return nil
	})
	return claimed, err
}

// ClaimProtocolRewards forwards the reward tokens accrued by every active vault to the owner
func (c *Controller) ClaimProtocolRewards(ctx context.Context, from string) (claimed []vaults.Rewards, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer leave()

	var owner string
	var active []VaultInfo
	err = c.db.View(func(txn *badger.Txn) (err error) {
		err = c.onlyOwner(txn, from)
		if err != nil {
			return err
		}
		owner, err = loadOwner(txn)
		if err != nil {
			return err
		}
		list, err := vaultList(txn)
		if err != nil {
			return err
		}
		for _, info := range list {
			if info.Active {
				active = append(active, info)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var claimErr error
	var emitted []events.Event
	for _, info := range active {
		vault, verr := c.vault(info.Address)
		if verr != nil {
			claimErr = fmt.Errorf("%w: %w", ErrClaimFailed, verr)
			break
		}
		rewards, verr := vault.ClaimRewards(ctx, vaults.ClaimRewardsRequest{Account: c.account, Destination: owner})
		if verr != nil {
			claimErr = fmt.Errorf("%w: vault %s: %w", ErrClaimFailed, info.Address, verr)
			break
		}
		claimed = append(claimed, rewards)
		if rewards.Amount > 0 {
			emitted = append(emitted, events.Event{
				Kind:      events.KindRewardsClaimed,
				Vault:     info.Address,
				Token:     rewards.Token,
				Amount:    rewards.Amount,
				Recipient: owner,
			})
		}
	}

	if len(emitted) > 0 {
		err = c.update(ctx, func(tx *tx) error {
			tx.events = append(tx.events, emitted...)
			return nil
		})
		if err != nil {
			return claimed, errors.Join(claimErr, err)
		}
	}
	return claimed, claimErr
}
