package decimal

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Minor units of the base asset (USDC like stablecoins use 6)
const BaseAssetDecimals = 6

var (
	ErrNegative      = errors.New("negative amount")
	ErrTooPrecise    = errors.New("amount has more decimals than the base asset")
	ErrAmountTooHigh = errors.New("amount doesn't fit in 64 bits")
)

// Decimal is a human readable base asset amount. "1500.5" represents 1_500_500_000 minor units
type Decimal struct {
	Value decimal.Decimal
}

func FromUint64(v uint64) (d Decimal) {
	d.FromUint64(v)
	return d
}

func (d *Decimal) FromUint64(v uint64) {
	d.Value = decimal.NewFromBigInt(new(big.Int).SetUint64(v), -BaseAssetDecimals)
}

func (d *Decimal) ToUint64() (v uint64, err error) {
	if d.Value.Sign() < 0 {
		return 0, ErrNegative
	}

	shifted := d.Value.Shift(BaseAssetDecimals)
	if !shifted.IsInteger() {
		return 0, ErrTooPrecise
	}

	asInt := shifted.BigInt()
	if !asInt.IsUint64() {
		return 0, ErrAmountTooHigh
	}
	return asInt.Uint64(), nil
}

func (d *Decimal) FromString(s string) (err error) {
	d.Value, err = decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("failed to parse decimal: %w", err)
	}
	return nil
}

// IsZero lets omitzero drop zero amounts
func (d Decimal) IsZero() (zero bool) {
	return d.Value.IsZero()
}

func (d Decimal) String() (s string) {
	return d.Value.StringFixed(BaseAssetDecimals)
}

var (
	_ json.Unmarshaler = (*Decimal)(nil)
	_ json.Marshaler   = (*Decimal)(nil)
	_ yaml.Unmarshaler = (*Decimal)(nil)
)

func (d *Decimal) UnmarshalJSON(b []byte) (err error) {
	var asString string
	err = json.Unmarshal(b, &asString)
	if err != nil {
		return err
	}

	return d.FromString(asString)
}

func (d Decimal) MarshalJSON() (b []byte, err error) {
	return json.Marshal(d.String())
}

func (d *Decimal) UnmarshalYAML(value *yaml.Node) (err error) {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("expecting a scalar amount at line %d", value.Line)
	}

	return d.FromString(value.Value)
}
