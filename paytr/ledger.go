package paytr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/tokens"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func loadRecord(txn *badger.Txn, id uuid.UUID) (invoice Invoice, err error) {
	err = getValue(txn, recordKey(id), invoice.FromBytes)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return invoice, fmt.Errorf("%w: record %s", ErrInvoiceNotFound, id)
	}
	if err != nil {
		return invoice, fmt.Errorf("failed to load record: %w", err)
	}
	return invoice, nil
}

// liveRecord returns the unredeemed record of key, found is false when there is none
func liveRecord(txn *badger.Txn, key InvoiceKey) (invoice Invoice, found bool, err error) {
	var id uuid.UUID
	err = getValue(txn, liveKey(key.Hash()), func(val []byte) (err error) {
		id, err = uuid.FromBytes(val)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return invoice, false, nil
	}
	if err != nil {
		return invoice, false, fmt.Errorf("failed to query live index: %w", err)
	}
	invoice, err = loadRecord(txn, id)
	return invoice, err == nil, err
}

// history streams the records of a key, oldest first
func history(txn *badger.Txn, key InvoiceKey) (records []Invoice, err error) {
	prefix := historyKeyPrefix(key.Hash())
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	it := txn.NewIterator(options)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		var id uuid.UUID
		err = it.Item().Value(func(val []byte) (err error) {
			id, err = uuid.FromBytes(val)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		invoice, err := loadRecord(txn, id)
		if err != nil {
			return nil, err
		}
		records = append(records, invoice)
	}
	return records, nil
}

func saveRecord(txn *badger.Txn, invoice *Invoice) (err error) {
	err = txn.Set(recordKey(invoice.Id), invoice.Bytes())
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// create validates a new invoice and stores it as live
func create(txn *badger.Txn, now time.Time, invoice *Invoice) (err error) {
	params, err := loadParameters(txn)
	if err != nil {
		return err
	}

	key := invoice.Key()
	_, found, err := liveRecord(txn, key)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, key)
	}
	if tokens.IsZeroAddress(invoice.Payee) {
		return ErrInvalidPayee
	}
	err = params.CheckAmount(invoice.Amount)
	if err != nil {
		return err
	}
	if invoice.FeeAmount > 0 && tokens.IsZeroAddress(invoice.FeeAddress) {
		return invalid("feeAddress", "zero address with a fee of %d", invoice.FeeAmount)
	}
	_, err = activeVault(txn, invoice.Vault)
	if err != nil {
		return err
	}
	if invoice.DueDate != 0 {
		err = params.CheckDueDate(now, invoice.DueDate)
		if err != nil {
			return err
		}
	}

	sequence, err := getUint64(txn, recordSequenceKey)
	if err != nil {
		return fmt.Errorf("failed to load record sequence: %w", err)
	}
	invoice.Sequence = sequence + 1
	err = setUint64(txn, recordSequenceKey, invoice.Sequence)
	if err != nil {
		return fmt.Errorf("failed to store record sequence: %w", err)
	}

	invoice.Id = uuid.New()
	invoice.CreatedAt = now.Unix()
	err = saveRecord(txn, invoice)
	if err != nil {
		return err
	}
	err = txn.Set(liveKey(key.Hash()), invoice.Id[:])
	if err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	err = txn.Set(historyKey(key.Hash(), invoice.Sequence), invoice.Id[:])
	if err != nil {
		return fmt.Errorf("failed to add record to history: %w", err)
	}
	return nil
}

// discard removes every trace of a record whose payment never completed
func discard(txn *badger.Txn, invoice *Invoice) (err error) {
	hash := invoice.Key().Hash()
	for _, key := range [][]byte{
		recordKey(invoice.Id),
		liveKey(hash),
		historyKey(hash, invoice.Sequence),
	} {
		err = txn.Delete(key)
		if err != nil {
			return fmt.Errorf("failed to discard record: %w", err)
		}
	}
	return nil
}

// markRedeemed flags a due record as redeemed and frees its key
func markRedeemed(txn *badger.Txn, now time.Time, invoice *Invoice) (err error) {
	if invoice.Redeemed {
		return fmt.Errorf("%w: %s", ErrAlreadyRedeemed, invoice.Key())
	}
	if !invoice.IsDue(now) {
		return fmt.Errorf("%w: %s due at %d", ErrNotDue, invoice.Key(), invoice.DueDate)
	}

	invoice.Redeemed = true
	invoice.RedeemedAt = now.Unix()
	err = saveRecord(txn, invoice)
	if err != nil {
		return err
	}
	err = txn.Delete(liveKey(invoice.Key().Hash()))
	if err != nil {
		return fmt.Errorf("failed to remove live index: %w", err)
	}
	return nil
}

// unmarkRedeemed reverts markRedeemed for a payout that could not complete
func unmarkRedeemed(txn *badger.Txn, invoice *Invoice) (err error) {
	invoice.Redeemed = false
	invoice.RedeemedAt = 0
	err = saveRecord(txn, invoice)
	if err != nil {
		return err
	}
	err = txn.Set(liveKey(invoice.Key().Hash()), invoice.Id[:])
	if err != nil {
		return fmt.Errorf("failed to restore live index: %w", err)
	}
	return nil
}

// AmendDueDate sets the due date of an invoice created without one. Only its payer may call it, once
func (c *Controller) AmendDueDate(ctx context.Context, from string, key InvoiceKey, dueDate int64) (invoice Invoice, err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return invoice, err
	}
	defer leave()

	key, err = key.Normalize()
	if err != nil {
		return invoice, err
	}

	now := c.now()
	err = c.update(ctx, func(tx *tx) (err error) {
		var found bool
		invoice, found, err = liveRecord(tx.Txn, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, key)
		}
		if tokens.NormalizeAddress(from) != invoice.Payer {
			return fmt.Errorf("%w: only the payer can amend the due date", ErrUnauthorized)
		}
		if invoice.DueDate != 0 {
			return fmt.Errorf("%w: %d", ErrAlreadySet, invoice.DueDate)
		}

		params, err := loadParameters(tx.Txn)
		if err != nil {
			return err
		}
		err = params.CheckDueDate(now, dueDate)
		if err != nil {
			return err
		}

		invoice.DueDate = dueDate
		err = saveRecord(tx.Txn, &invoice)
		if err != nil {
			return err
		}

		tx.emit(events.Event{
			Kind:      events.KindDueDateUpdated,
			Invoice:   invoice.Id.String(),
			Payer:     invoice.Payer,
			Payee:     invoice.Payee,
			Reference: invoice.Reference,
			DueDate:   dueDate,
		})
		return nil
	})
	return invoice, err
}

// Invoice returns the live record of key, or the most recent redeemed one
func (c *Controller) Invoice(ctx context.Context, key InvoiceKey) (invoice Invoice, err error) {
	key, err = key.Normalize()
	if err != nil {
		return invoice, err
	}

	err = c.db.View(func(txn *badger.Txn) (err error) {
		var found bool
		invoice, found, err = liveRecord(txn, key)
		if err != nil || found {
			return err
		}

		records, err := history(txn, key)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, key)
		}
		invoice = records[len(records)-1]
		return nil
	})
	return invoice, err
}

// Record returns a record by id
func (c *Controller) Record(ctx context.Context, id uuid.UUID) (invoice Invoice, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		invoice, err = loadRecord(txn, id)
		return err
	})
	return invoice, err
}

// History returns every record created for key, oldest first
func (c *Controller) History(ctx context.Context, key InvoiceKey) (records []Invoice, err error) {
	key, err = key.Normalize()
	if err != nil {
		return nil, err
	}

	err = c.db.View(func(txn *badger.Txn) (err error) {
		records, err = history(txn, key)
		return err
	})
	return records, err
}
