package paytr

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anarchy.ttfm/paytr/events"
	badger "github.com/dgraph-io/badger/v4"
)

const (
	// FeeModifier is expressed over FeeModifierScale. 9000 leaves 90% of the interest to the parties
	FeeModifierScale = 10_000
	// Below this the protocol would keep more than half of the interest
	MinFeeModifier = 5_000

	MinDueDateFloor   = 24 * time.Hour
	MaxDueDateCeiling = 365 * 24 * time.Hour
)

// Parameters are the owner settable risk controls
type Parameters struct {
	// Share of the realised interest distributed to invoices, over FeeModifierScale
	FeeModifier uint64 `json:"feeModifier" yaml:"fee-modifier"`
	// Bounds of a due date relative to the moment it is set
	MinDueDate time.Duration `json:"minDueDate" yaml:"min-due-date"`
	MaxDueDate time.Duration `json:"maxDueDate" yaml:"max-due-date"`
	// Bounds of the principal of an invoice
	MinAmount uint64 `json:"minAmount" yaml:"min-amount"`
	MaxAmount uint64 `json:"maxAmount" yaml:"max-amount"`
	// Maximum invoices per payout
	MaxPayoutArraySize uint64 `json:"maxPayoutArraySize" yaml:"max-payout-array-size"`
}

// DefaultParameters are the values the contract is deployed with
func DefaultParameters() (params Parameters) {
	return Parameters{
		FeeModifier:        9_000,
		MinDueDate:         7 * 24 * time.Hour,
		MaxDueDate:         365 * 24 * time.Hour,
		MinAmount:          10_000_000,
		MaxAmount:          100_000_000_000,
		MaxPayoutArraySize: 30,
	}
}

// Validate checks the whole tuple, returning a *ParameterError for the first offending field
func (p *Parameters) Validate() (err error) {
	switch {
	case p.FeeModifier < MinFeeModifier:
		return invalid("feeModifier", "%d implies a fee above 50%%", p.FeeModifier)
	case p.FeeModifier > FeeModifierScale:
		return invalid("feeModifier", "%d is above %d", p.FeeModifier, FeeModifierScale)
	case p.MinDueDate < MinDueDateFloor:
		return invalid("minDueDate", "%s is below %s", p.MinDueDate, MinDueDateFloor)
	case p.MaxDueDate > MaxDueDateCeiling:
		return invalid("maxDueDate", "%s is above %s", p.MaxDueDate, MaxDueDateCeiling)
	case p.MinDueDate >= p.MaxDueDate:
		return invalid("minDueDate", "%s must be below maxDueDate %s", p.MinDueDate, p.MaxDueDate)
	case p.MinAmount == 0:
		return invalid("minAmount", "must be positive")
	case p.MinAmount >= p.MaxAmount:
		return invalid("minAmount", "%d must be below maxAmount %d", p.MinAmount, p.MaxAmount)
	case p.MaxPayoutArraySize == 0:
		return invalid("maxPayoutArraySize", "must be at least 1")
	}
	return nil
}

// CheckDueDate verifies a due date set at now falls inside the configured window
func (p *Parameters) CheckDueDate(now time.Time, dueDate int64) (err error) {
	if dueDate == 0 {
		return ErrInvalidDueDate
	}
	lower := now.Add(p.MinDueDate).Unix()
	upper := now.Add(p.MaxDueDate).Unix()
	if dueDate < lower || dueDate > upper {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrDueDateOutOfRange, dueDate, lower, upper)
	}
	return nil
}

// CheckAmount verifies the principal of an invoice
func (p *Parameters) CheckAmount(amount uint64) (err error) {
	if amount == 0 || amount < p.MinAmount || amount > p.MaxAmount {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrAmountOutOfRange, amount, p.MinAmount, p.MaxAmount)
	}
	return nil
}

func (p *Parameters) Bytes() (b []byte) {
	b, _ = json.Marshal(p)
	return b
}

func (p *Parameters) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, p)
}

func loadParameters(txn *badger.Txn) (params Parameters, err error) {
	err = getValue(txn, parametersKey, params.FromBytes)
	if err != nil {
		return params, fmt.Errorf("failed to load parameters: %w", err)
	}
	return params, nil
}

// Parameters returns the current risk controls
func (c *Controller) Parameters(ctx context.Context) (params Parameters, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		params, err = loadParameters(txn)
		return err
	})
	return params, err
}

// SetParameters replaces every parameter at once. Only the owner may call it
func (c *Controller) SetParameters(ctx context.Context, from string, params Parameters) (err error) {
	ctx, leave, err := c.enter(ctx)
	if err != nil {
		return err
	}
	defer leave()

	return c.update(ctx, func(tx *tx) (err error) {
		err = c.onlyOwner(tx.Txn, from)
		if err != nil {
			return err
		}
		err = params.Validate()
		if err != nil {
			return err
		}

		err = tx.Set(parametersKey, params.Bytes())
		if err != nil {
			return fmt.Errorf("failed to save parameters: %w", err)
		}

		tx.emit(events.Event{
			Kind:    events.KindParametersUpdated,
			Details: params.Bytes(),
		})
		return nil
	})
}
