package testsuite

import (
	"context"
	"testing"

	"anarchy.ttfm/paytr/random"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/utils"
	"anarchy.ttfm/paytr/vaults"
	"github.com/stretchr/testify/assert"
)

// DataGenerator defines an interface for test data generation.
type DataGenerator interface {
	// SupplyAmount returns the amount to supply to the vault.
	SupplyAmount() (amount uint64)
	// Fund credits base asset to an account out of band
	Fund(ctx context.Context, account string, amount uint64) (err error)
	// Accrue makes the vault earn interest
	Accrue(ctx context.Context, amount uint64) (err error)
}

// Test runs a comprehensive suite of tests for any Vault implementation.
// token is the base asset accepted by the vault.
func Test(t *testing.T, vault vaults.Vault, token tokens.Token, gen DataGenerator) {
	r := random.Seeded(uint64(len(t.Name())))

	supply := func(t *testing.T, ctx context.Context, amount uint64) (account string, s vaults.Supply) {
		assertions := assert.New(t)

		account = random.Address(r)
		err := gen.Fund(ctx, account, amount)
		assertions.Nil(err, "failed to fund account")

		err = token.Approve(ctx, tokens.ApproveRequest{Owner: account, Spender: vault.Address(), Amount: amount})
		assertions.Nil(err, "failed to approve vault")

		s, err = vault.Supply(ctx, vaults.SupplyRequest{Account: account, Asset: token.Address(), Amount: amount})
		assertions.Nil(err, "failed to supply")
		return account, s
	}

	t.Run("Supply", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		amount := gen.SupplyAmount()
		account, s := supply(t, ctx, amount)
		assertions.Equal(amount, s.Amount, "invalid supplied amount")
		assertions.NotZero(s.Shares, "supply should mint shares")

		balance, err := vault.BalanceOf(ctx, vaults.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query shares")
		assertions.Equal(s.Shares, balance.Shares, "shares should be credited")

		tokenBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query token balance")
		assertions.Zero(tokenBalance.Amount, "base asset should have left the account")

		preview, err := vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: balance.Shares})
		assertions.Nil(err, "failed to preview")
		assertions.LessOrEqual(preview.Amount, amount, "shares can't be worth more than supplied without interest")
		assertions.GreaterOrEqual(preview.Amount+1, amount, "shares should be worth what was supplied")
	})

	t.Run("Unsupported Asset", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		_, err := vault.Supply(ctx, vaults.SupplyRequest{Account: random.Address(r), Asset: random.Address(r), Amount: 1})
		assertions.ErrorIs(err, vaults.ErrUnsupportedAsset)
	})

	t.Run("Withdraw", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		amount := gen.SupplyAmount()
		account, s := supply(t, ctx, amount)

		w, err := vault.Withdraw(ctx, vaults.WithdrawRequest{Account: account, Asset: token.Address(), Amount: amount / 2})
		assertions.Nil(err, "failed to withdraw")
		assertions.Equal(amount/2, w.Amount, "invalid withdrawn amount")
		assertions.LessOrEqual(w.Shares, s.Shares, "burned more shares than minted")

		tokenBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query token balance")
		assertions.Equal(amount/2, tokenBalance.Amount, "withdrawn base asset should be received")
	})

	t.Run("Withdraw Above Balance", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		amount := gen.SupplyAmount()
		account, s := supply(t, ctx, amount)

		_, err := vault.Withdraw(ctx, vaults.WithdrawRequest{Account: account, Asset: token.Address(), Amount: amount * 2})
		assertions.ErrorIs(err, vaults.ErrInsufficientShares)

		balance, err := vault.BalanceOf(ctx, vaults.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query shares")
		assertions.Equal(s.Shares, balance.Shares, "failed withdraw must not burn shares")
	})

	t.Run("Interest", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		amount := gen.SupplyAmount()
		account, s := supply(t, ctx, amount)

		before, err := vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: s.Shares})
		assertions.Nil(err, "failed to preview")

		err = gen.Accrue(ctx, amount/10)
		assertions.Nil(err, "failed to accrue interest")

		after, err := vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: s.Shares})
		assertions.Nil(err, "failed to preview")
		assertions.Greater(after.Amount, before.Amount, "interest should increase share value")

		w, err := vault.Withdraw(ctx, vaults.WithdrawRequest{Account: account, Asset: token.Address(), Amount: after.Amount})
		assertions.Nil(err, "failed to withdraw with interest")
		assertions.Equal(after.Amount, w.Amount, "invalid withdrawn amount")
	})

	t.Run("Supply Rate", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		low, err := vault.SupplyRate(ctx, vaults.SupplyRateRequest{Utilization: vaults.RateScale / 10})
		assertions.Nil(err, "failed to query supply rate")
		high, err := vault.SupplyRate(ctx, vaults.SupplyRateRequest{Utilization: vaults.RateScale / 2})
		assertions.Nil(err, "failed to query supply rate")
		assertions.GreaterOrEqual(high.Rate, low.Rate, "rate should not decrease with utilization")
	})
}
