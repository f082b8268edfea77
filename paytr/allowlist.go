package paytr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/tokens"
	badger "github.com/dgraph-io/badger/v4"
)

type VaultInfo struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	// Payments and payouts need an active vault
	Active bool `json:"active"`
}

func (v *VaultInfo) Bytes() (b []byte) {
	b, _ = json.Marshal(v)
	return b
}

func (v *VaultInfo) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, v)
}

type FeeRouting struct {
	// Address used when an invoice with fee doesn't name one
	Default   string   `json:"default,omitempty"`
	Addresses []string `json:"addresses"`
}

func vaultInfo(txn *badger.Txn, address string) (info VaultInfo, err error) {
	err = getValue(txn, vaultKey(tokens.NormalizeAddress(address)), info.FromBytes)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return info, fmt.Errorf("%w: %s", ErrVaultNotFound, address)
	}
	if err != nil {
		return info, fmt.Errorf("failed to load vault: %w", err)
	}
	return info, nil
}

func activeVault(txn *badger.Txn, address string) (info VaultInfo, err error) {
	info, err = vaultInfo(txn, address)
	if err != nil {
		return info, err
	}
	if !info.Active {
		return info, fmt.Errorf("%w: %s is inactive", ErrVaultNotAllowed, address)
	}
	return info, nil
}

// Vault returns the allow-list entry of a vault
func (c *Controller) Vault(ctx context.Context, address string) (info VaultInfo, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		info, err = vaultInfo(txn, address)
		return err
	})
	return info, err
}

// Vaults lists every vault ever allow-listed
func (c *Controller) Vaults(ctx context.Context) (list []VaultInfo, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		list, err = vaultList(txn)
		return err
	})
	return list, err
}

func vaultList(txn *badger.Txn) (list []VaultInfo, err error) {
	options := badger.DefaultIteratorOptions
	options.Prefix = vaultPrefix
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(vaultPrefix); it.Next() {
		var info VaultInfo
		err = it.Item().Value(info.FromBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to decode vault: %w", err)
		}
		list = append(list, info)
	}
	return list, nil
}

// AddVault allow-lists a vault or reactivates it. Adding an active vault again only updates its decimals
func (c *Controller) AddVault(ctx context.Context, from, address string, decimals uint8) (info VaultInfo, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return info, err
	}
	defer leave()

	address = tokens.NormalizeAddress(address)
	err = c.update(ctx, func(tx *tx) (err error) {
		err = c.onlyOwner(tx.Txn, from)
		if err != nil {
			return err
		}
		if tokens.IsZeroAddress(address) {
			return invalid("address", "zero address")
		}
		if _, err = c.vault(address); err != nil {
			return err
		}

		previous, err := vaultInfo(tx.Txn, address)
		if err != nil && !errors.Is(err, ErrVaultNotFound) {
			return err
		}
		info = VaultInfo{Address: address, Decimals: decimals, Active: true}
		if previous == info {
			return nil
		}

		err = tx.Set(vaultKey(address), info.Bytes())
		if err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}
		tx.emit(events.Event{Kind: events.KindVaultUpdated, Vault: address, Active: true})
		return nil
	})
	return info, err
}

// RemoveVault deactivates a vault. Records escrowed in it stay readable
func (c *Controller) RemoveVault(ctx context.Context, from, address string) (err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	address = tokens.NormalizeAddress(address)
	return c.update(ctx, func(tx *tx) (err error) {
		err = c.onlyOwner(tx.Txn, from)
		if err != nil {
			return err
		}

		info, err := vaultInfo(tx.Txn, address)
		if errors.Is(err, ErrVaultNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.Active {
			return nil
		}

		info.Active = false
		err = tx.Set(vaultKey(address), info.Bytes())
		if err != nil {
			return fmt.Errorf("failed to save vault: %w", err)
		}
		tx.emit(events.Event{Kind: events.KindVaultUpdated, Vault: address})
		return nil
	})
}

func isFeeRouting(txn *badger.Txn, address string) (allowed bool, err error) {
	_, err = txn.Get(feeRoutingKey(tokens.NormalizeAddress(address)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("failed to query fee routing address: %w", err)
	}
}

func defaultFeeRouting(txn *badger.Txn) (address string, err error) {
	err = getValue(txn, defaultFeeRoutingKey, func(val []byte) error {
		address = string(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	return address, err
}

// FeeRouting lists the allow-listed fee routing addresses
func (c *Controller) FeeRouting(ctx context.Context) (routing FeeRouting, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		routing.Default, err = defaultFeeRouting(txn)
		if err != nil {
			return fmt.Errorf("failed to load default fee routing address: %w", err)
		}

		options := badger.DefaultIteratorOptions
		options.Prefix = feeRoutingPrefix
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(feeRoutingPrefix); it.Next() {
			key := string(it.Item().Key())
			routing.Addresses = append(routing.Addresses, strings.TrimPrefix(key, string(feeRoutingPrefix)))
		}
		return nil
	})
	return routing, err
}

func (c *Controller) setFeeRouting(ctx context.Context, from, address string, allowed, makeDefault bool) (err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	address = tokens.NormalizeAddress(address)
	return c.update(ctx, func(tx *tx) (err error) {
		err = c.onlyOwner(tx.Txn, from)
		if err != nil {
			return err
		}
		if tokens.IsZeroAddress(address) {
			return invalid("address", "zero address")
		}

		present, err := isFeeRouting(tx.Txn, address)
		if err != nil {
			return err
		}
		current, err := defaultFeeRouting(tx.Txn)
		if err != nil {
			return fmt.Errorf("failed to load default fee routing address: %w", err)
		}

		changed := false
		switch {
		case allowed && !present:
			err = tx.Set(feeRoutingKey(address), []byte{1})
			changed = true
		case !allowed && present:
			err = tx.Delete(feeRoutingKey(address))
			changed = true
		}
		if err != nil {
			return fmt.Errorf("failed to update fee routing address: %w", err)
		}

		switch {
		case makeDefault && current != address:
			err = tx.Set(defaultFeeRoutingKey, []byte(address))
			changed = true
		case !allowed && current == address:
			err = tx.Delete(defaultFeeRoutingKey)
			changed = true
		}
		if err != nil {
			return fmt.Errorf("failed to update default fee routing address: %w", err)
		}

		if changed {
			tx.emit(events.Event{Kind: events.KindFeeRoutingUpdated, Recipient: address, Active: allowed})
		}
		return nil
	})
}

// AddFeeRoutingAddress allow-lists a fee routing address
func (c *Controller) AddFeeRoutingAddress(ctx context.Context, from, address string) (err error) {
	return c.setFeeRouting(ctx, from, address, true, false)
}

// RemoveFeeRoutingAddress removes a fee routing address, clearing the default if it was it
func (c *Controller) RemoveFeeRoutingAddress(ctx context.Context, from, address string) (err error) {
	return c.setFeeRouting(ctx, from, address, false, false)
}

// SetFeeRoutingAddress allow-lists address and makes it the default
func (c *Controller) SetFeeRoutingAddress(ctx context.Context, from, address string) (err error) {
	return c.setFeeRouting(ctx, from, address, true, true)
}
