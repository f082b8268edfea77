package decimal_test

import (
	"encoding/json"
	"testing"

	"anarchy.ttfm/paytr/decimal"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

const unit = 1_000_000

func Test_Decimal(t *testing.T) {
	t.Run("Succeed", func(t *testing.T) {
		type Test struct {
			Reference string
			Expect    uint64
		}
		tests := []Test{
			{Reference: `0`, Expect: 0},
			{Reference: `0.0`, Expect: 0},
			{Reference: `1`, Expect: 1 * unit},
			{Reference: `1.000000`, Expect: 1 * unit},
			{Reference: `0.000001`, Expect: 1},
			{Reference: `0.1`, Expect: 100_000},
			{Reference: `1500`, Expect: 1_500_000_000},
			{Reference: `10.000001`, Expect: 10*unit + 1},
			{Reference: `100000`, Expect: 100_000 * unit},
			{Reference: `123.456`, Expect: 123_456_000},
		}
		for _, test := range tests {
			name, _ := json.Marshal(test)
			t.Run(string(name), func(t *testing.T) {
				assertions := assert.New(t)

				var value decimal.Decimal
				err := value.FromString(test.Reference)
				assertions.Nil(err, "failed to convert from string")

				v, err := value.ToUint64()
				assertions.Nil(err, "failed to convert to uint64")
				assertions.Equal(test.Expect, v, "invalid minor units")

				final := decimal.FromUint64(v)
				again, err := final.ToUint64()
				assertions.Nil(err, "failed to convert back")
				assertions.Equal(v, again, "not equal")
			})
		}
	})
	t.Run("Fail", func(t *testing.T) {
		type Test struct {
			Reference string
			Expect    error
		}
		tests := []Test{
			{Reference: `-1`, Expect: decimal.ErrNegative},
			{Reference: `0.0000001`, Expect: decimal.ErrTooPrecise},
			{Reference: `18446744073709.551616`, Expect: decimal.ErrAmountTooHigh},
		}
		for _, test := range tests {
			t.Run(test.Reference, func(t *testing.T) {
				assertions := assert.New(t)

				var value decimal.Decimal
				err := value.FromString(test.Reference)
				assertions.Nil(err, "failed to convert from string")

				_, err = value.ToUint64()
				assertions.ErrorIs(err, test.Expect)
			})
		}
	})
	t.Run("Encoding", func(t *testing.T) {
		assertions := assert.New(t)

		contents, err := json.Marshal(decimal.FromUint64(1_500_000_000))
		assertions.Nil(err, "failed to marshal")
		assertions.Equal(`"1500.000000"`, string(contents))

		var fromJson decimal.Decimal
		err = json.Unmarshal([]byte(`"10.5"`), &fromJson)
		assertions.Nil(err, "failed to unmarshal json")
		v, _ := fromJson.ToUint64()
		assertions.Equal(uint64(10_500_000), v)

		var fromYaml struct {
			Amount decimal.Decimal `yaml:"amount"`
		}
		err = yaml.Unmarshal([]byte("amount: 100000\n"), &fromYaml)
		assertions.Nil(err, "failed to unmarshal yaml")
		v, _ = fromYaml.Amount.ToUint64()
		assertions.Equal(uint64(100_000*unit), v)
	})
}
