package paytr

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"anarchy.ttfm/paytr/events"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	ownerKey             = []byte("/owner")
	parametersKey        = []byte("/parameters")
	defaultFeeRoutingKey = []byte("/fee-routing-default")
	eventSequenceKey     = []byte("/event-sequence")
	owedTotalKey         = []byte("/owed-total")
	recordSequenceKey    = []byte("/record-sequence")

	vaultPrefix      = []byte("/vaults/")
	feeRoutingPrefix = []byte("/fee-routing/")
	livePrefix       = []byte("/live/")
	eventPrefix      = []byte("/events/")
)

func vaultKey(address string) (key []byte) {
	return []byte(fmt.Sprintf("/vaults/%s", address))
}

func feeRoutingKey(address string) (key []byte) {
	return []byte(fmt.Sprintf("/fee-routing/%s", address))
}

func recordKey(id uuid.UUID) (key []byte) {
	return []byte(fmt.Sprintf("/records/%s", id))
}

func liveKey(hash string) (key []byte) {
	return []byte(fmt.Sprintf("/live/%s", hash))
}

func historyKeyPrefix(hash string) (prefix []byte) {
	return []byte(fmt.Sprintf("/history/%s/", hash))
}

func historyKey(hash string, sequence uint64) (key []byte) {
	return []byte(fmt.Sprintf("/history/%s/%020d", hash, sequence))
}

func eventKey(sequence uint64) (key []byte) {
	return []byte(fmt.Sprintf("/events/%020d", sequence))
}

func owedKey(address string) (key []byte) {
	return []byte(fmt.Sprintf("/owed/%s", address))
}

func getValue(txn *badger.Txn, key []byte, fn func(val []byte) error) (err error) {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(fn)
}

func getUint64(txn *badger.Txn, key []byte) (value uint64, err error) {
	err = getValue(txn, key, func(val []byte) (err error) {
		if len(val) != 8 {
			return fmt.Errorf("invalid counter length: %d", len(val))
		}
		value = binary.BigEndian.Uint64(val)
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	return value, err
}

func setUint64(txn *badger.Txn, key []byte, value uint64) (err error) {
	return txn.Set(key, binary.BigEndian.AppendUint64(nil, value))
}

// tx is a write transaction collecting the events produced by its changes
type tx struct {
	*badger.Txn
	events []events.Event
}

func (t *tx) emit(event events.Event) {
	t.events = append(t.events, event)
}

// update runs fn in a write transaction. Events emitted by fn are stored in the same transaction
// and published once it commits
func (c *Controller) update(ctx context.Context, fn func(tx *tx) error) (err error) {
	var committed []events.Event
	err = c.db.Update(func(txn *badger.Txn) (err error) {
		t := &tx{Txn: txn}
		err = fn(t)
		if err != nil {
			return err
		}
		if len(t.events) == 0 {
			return nil
		}

		sequence, err := getUint64(txn, eventSequenceKey)
		if err != nil {
			return fmt.Errorf("failed to load event sequence: %w", err)
		}
		now := c.now().Unix()
		for i := range t.events {
			sequence++
			t.events[i].Sequence = sequence
			t.events[i].Time = now
			err = txn.Set(eventKey(sequence), t.events[i].Bytes())
			if err != nil {
				return fmt.Errorf("failed to store event: %w", err)
			}
		}
		err = setUint64(txn, eventSequenceKey, sequence)
		if err != nil {
			return fmt.Errorf("failed to store event sequence: %w", err)
		}
		committed = t.events
		return nil
	})
	if err != nil {
		return err
	}

	if c.publisher != nil && len(committed) > 0 {
		perr := c.publisher.Publish(ctx, committed...)
		if perr != nil {
			log.Println("ERROR|PUBLISH|EVENTS", perr)
		}
	}
	return nil
}

// Events lists stored events with a sequence greater than after, at most limit of them (0 for all)
func (c *Controller) Events(ctx context.Context, after uint64, limit int) (list []events.Event, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		options := badger.DefaultIteratorOptions
		options.Prefix = eventPrefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(eventKey(after + 1)); it.ValidForPrefix(eventPrefix); it.Next() {
			if limit > 0 && len(list) >= limit {
				break
			}
			var event events.Event
			err = it.Item().Value(event.FromBytes)
			if err != nil {
				return fmt.Errorf("failed to decode event: %w", err)
			}
			list = append(list, event)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return list, nil
}
