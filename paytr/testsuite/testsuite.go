package testsuite

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "embed"

	"anarchy.ttfm/paytr/paytr"
	"anarchy.ttfm/paytr/random"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/utils"
	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

// DataGenerator defines an interface for test data generation.
type DataGenerator interface {
	// Amount returns the principal of the index-th invoice of a scenario
	Amount(index int) (amount uint64)
	// Fund credits base asset to an account out of band
	Fund(ctx context.Context, account string, amount uint64) (err error)
	// Accrue makes the escrow vault earn bps of its assets
	Accrue(ctx context.Context, bps uint64) (err error)
}

// Environment is a controller wired to fresh backends
type Environment struct {
	Controller *paytr.Controller
	// Base asset as reached by the controller
	Token     tokens.Token
	Generator DataGenerator
}

// Setup builds a new environment whose controller reads time from now
type Setup func(t *testing.T, now func() time.Time) (env Environment)

var expectedErrors = map[string]error{
	"not-due":               paytr.ErrNotDue,
	"already-redeemed":      paytr.ErrAlreadyRedeemed,
	"due-date-out-of-range": paytr.ErrDueDateOutOfRange,
	"amount-out-of-range":   paytr.ErrAmountOutOfRange,
	"vault-shortfall":       paytr.ErrVaultShortfall,
}

//go:embed tests/succeed.yaml
var succeedTests []byte

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func expected(t *testing.T, name string) (err error) {
	if name == "" {
		return nil
	}
	err, found := expectedErrors[name]
	if !found {
		t.Fatalf("unknown expected error %q", name)
	}
	return err
}

// Test runs the settlement scenarios against any controller environment.
func Test(t *testing.T, setup Setup) {
	t.Run("Succeed", func(t *testing.T) {
		assertions := assert.New(t)

		type Expect struct {
			PayError    string `yaml:"pay-error"`
			Error       string `yaml:"error"`
			SecondError string `yaml:"second-error"`
		}
		type Test struct {
			Name        string        `yaml:"name"`
			Invoices    int           `yaml:"invoices"`
			Fee         uint64        `yaml:"fee"`
			DueIn       time.Duration `yaml:"due-in"`
			Advance     time.Duration `yaml:"advance"`
			AccrueBps   uint64        `yaml:"accrue-bps"`
			PayoutTwice bool          `yaml:"payout-twice"`
			Expect      Expect        `yaml:"expect"`
		}

		var tests []Test
		err := yaml.Unmarshal(succeedTests, &tests)
		assertions.Nil(err, "failed to load tests")

		for _, test := range tests {
			t.Run(test.Name, func(t *testing.T) {
				assertions := assert.New(t)

				ctx, cancel := utils.NewContext()
				defer cancel()

				c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
				env := setup(t, c.Now)
				ctrl := env.Controller
				r := random.Seeded(uint64(len(test.Name)))

				params, err := ctrl.Parameters(ctx)
				assertions.Nil(err, "failed to query parameters")

				feeAddress := random.Address(r)
				keys := make([]paytr.InvoiceKey, test.Invoices)
				amounts := make([]uint64, test.Invoices)
				var principal uint64
				for index := range keys {
					keys[index] = paytr.InvoiceKey{
						Payer:     random.Address(r),
						Payee:     random.Address(r),
						Reference: random.Reference(r, 16),
					}
					amounts[index] = env.Generator.Amount(index)
					principal += amounts[index]

					escrow := amounts[index] + test.Fee
					err = env.Generator.Fund(ctx, keys[index].Payer, escrow)
					assertions.Nil(err, "failed to fund payer")
					err = env.Token.Approve(ctx, tokens.ApproveRequest{Owner: keys[index].Payer, Spender: ctrl.Account(), Amount: escrow})
					assertions.Nil(err, "failed to approve controller")

					req := paytr.PayInvoiceWithFee{
						PayInvoice: paytr.PayInvoice{
							From:      keys[index].Payer,
							Asset:     ctrl.BaseAsset(),
							Payee:     keys[index].Payee,
							DueDate:   c.Now().Add(test.DueIn).Unix(),
							Amount:    amounts[index],
							Reference: keys[index].Reference,
						},
						FeeAmount:  test.Fee,
						FeeAddress: feeAddress,
					}
					if test.Fee > 0 {
						_, err = ctrl.PayInvoiceWithFee(ctx, &req)
					} else {
						_, err = ctrl.PayInvoice(ctx, &req.PayInvoice)
					}
					if payErr := expected(t, test.Expect.PayError); payErr != nil {
						assertions.ErrorIs(err, payErr, "invalid payment error")
						return
					}
					assertions.Nil(err, "failed to pay invoice")
				}

				c.Advance(test.Advance)
				if test.AccrueBps > 0 {
					err = env.Generator.Accrue(ctx, test.AccrueBps)
					assertions.Nil(err, "failed to accrue interest")
				}

				totals, err := ctrl.Quote(ctx, keys)
				assertions.Nil(err, "failed to quote")
				settlement, err := ctrl.PayOut(ctx, &paytr.PayOut{Invoices: keys, Totals: totals})
				if payoutErr := expected(t, test.Expect.Error); payoutErr != nil {
					assertions.ErrorIs(err, payoutErr, "invalid payout error")
					for _, key := range keys {
						invoice, err := ctrl.Invoice(ctx, key)
						assertions.Nil(err, "failed to query invoice")
						assertions.False(invoice.Redeemed, "failed payout must not redeem")
					}
					return
				}
				if !assertions.Nil(err, "failed to pay out") || !assertions.Len(settlement.Groups, 1) {
					return
				}

				group := settlement.Groups[0]
				distributable := group.Interest * params.FeeModifier / paytr.FeeModifierScale
				var paid uint64
				for index, key := range keys {
					d := settlement.Disbursements[index]
					share := distributable * amounts[index] / principal
					assertions.Equal(share, d.Interest, "invalid interest share")

					balance, err := env.Token.BalanceOf(ctx, tokens.BalanceRequest{Account: key.Payee})
					assertions.Nil(err, "failed to query payee balance")
					assertions.Equal(amounts[index]+share, balance.Amount, "invalid payee balance")
					paid += amounts[index] + test.Fee + share

					invoice, err := ctrl.Invoice(ctx, key)
					assertions.Nil(err, "failed to query invoice")
					assertions.True(invoice.Redeemed, "invoice should be redeemed")
				}
				feeBalance, err := env.Token.BalanceOf(ctx, tokens.BalanceRequest{Account: feeAddress})
				assertions.Nil(err, "failed to query fee balance")
				assertions.Equal(test.Fee*uint64(test.Invoices), feeBalance.Amount, "invalid fee balance")
				assertions.Equal(group.Withdraw.Received, paid+settlement.ProtocolFloat, "funds should be conserved")

				if test.PayoutTwice {
					_, err = ctrl.PayOut(ctx, &paytr.PayOut{Invoices: keys, Totals: totals})
					assertions.ErrorIs(err, expected(t, test.Expect.SecondError), "invalid second payout error")
				}
			})
		}
	})
}
