package mock_test

import (
	"context"
	"testing"

	"anarchy.ttfm/paytr/tokens"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/vaults"
	"anarchy.ttfm/paytr/vaults/mock"
	"anarchy.ttfm/paytr/vaults/testsuite"
	"github.com/stretchr/testify/assert"
)

func newVault() (token, reward *tokenmock.Mock, vault *mock.Mock) {
	token = tokenmock.New(tokenmock.Config{Address: "0xusdc"})
	reward = tokenmock.New(tokenmock.Config{Address: "0xcomp"})
	vault = mock.New(mock.Config{
		Address:      "0xcusdc",
		Token:        token,
		RewardToken:  reward,
		SharesOffset: 2,
		BaseRate:     vaults.RateScale / 1_000_000_000,
		Slope:        vaults.RateScale / 100_000_000,
	})
	return token, reward, vault
}

func Test_Mock(t *testing.T) {
	token, reward, vault := newVault()
	testsuite.Test(t, vault, token, &testsuite.MockGenerator{Token: token, Vault: vault})

	supply := func(assertions *assert.Assertions, account string, amount uint64) {
		ctx := context.TODO()
		err := token.Mint(account, amount)
		assertions.Nil(err, "failed to mint")
		err = token.Approve(ctx, tokens.ApproveRequest{Owner: account, Spender: vault.Address(), Amount: amount})
		assertions.Nil(err, "failed to approve")
		_, err = vault.Supply(ctx, vaults.SupplyRequest{Account: account, Asset: "0xUSDC", Amount: amount})
		assertions.Nil(err, "failed to supply")
	}

	t.Run("Paused", func(t *testing.T) {
		assertions := assert.New(t)

		ctx := context.TODO()
		supply(assertions, "0xpaused", 100)

		vault.Pause(true)
		defer vault.Pause(false)

		_, err := vault.Withdraw(ctx, vaults.WithdrawRequest{Account: "0xpaused", Asset: "0xusdc", Amount: 10})
		assertions.ErrorIs(err, vaults.ErrPaused)
		_, err = vault.Supply(ctx, vaults.SupplyRequest{Account: "0xpaused", Asset: "0xusdc", Amount: 10})
		assertions.ErrorIs(err, vaults.ErrPaused)
	})

	t.Run("Zero Amount", func(t *testing.T) {
		assertions := assert.New(t)

		_, err := vault.Supply(context.TODO(), vaults.SupplyRequest{Account: "0xzero", Asset: "0xusdc"})
		assertions.ErrorIs(err, vaults.ErrInvalidAmount)
	})

	t.Run("Drain", func(t *testing.T) {
		assertions := assert.New(t)

		token, _, vault := newVault()
		ctx := context.TODO()
		err := token.Mint("0xdrained", 1_000)
		assertions.Nil(err, "failed to mint")
		err = token.Approve(ctx, tokens.ApproveRequest{Owner: "0xdrained", Spender: vault.Address(), Amount: 1_000})
		assertions.Nil(err, "failed to approve")
		s, err := vault.Supply(ctx, vaults.SupplyRequest{Account: "0xdrained", Asset: "0xusdc", Amount: 1_000})
		assertions.Nil(err, "failed to supply")

		vault.Drain(100)
		_, err = vault.Withdraw(ctx, vaults.WithdrawRequest{Account: "0xdrained", Asset: "0xusdc", Amount: 1_000})
		assertions.ErrorIs(err, vaults.ErrInsufficientShares, "drained vault can't return the full supply")

		preview, err := vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: s.Shares})
		assertions.Nil(err, "failed to preview")
		assertions.Equal(uint64(900), preview.Amount, "shares should be worth what is left")
	})

	t.Run("Accrue Bps", func(t *testing.T) {
		assertions := assert.New(t)

		_, _, vault := newVault()
		accrued, err := vault.AccrueBps(100)
		assertions.Nil(err, "failed to accrue")
		assertions.Zero(accrued, "empty vault earns nothing")
	})

	t.Run("Rewards", func(t *testing.T) {
		assertions := assert.New(t)

		ctx := context.TODO()
		vault.AccrueRewards("0xEarner", 42)

		rewards, err := vault.ClaimRewards(ctx, vaults.ClaimRewardsRequest{Account: "0xearner", Destination: "0xowner"})
		assertions.Nil(err, "failed to claim")
		assertions.Equal(uint64(42), rewards.Amount)
		assertions.Equal("0xcomp", rewards.Token)

		balance, err := reward.BalanceOf(ctx, tokens.BalanceRequest{Account: "0xowner"})
		assertions.Nil(err, "failed to query reward balance")
		assertions.Equal(uint64(42), balance.Amount, "rewards should be minted to destination")

		rewards, err = vault.ClaimRewards(ctx, vaults.ClaimRewardsRequest{Account: "0xearner", Destination: "0xowner"})
		assertions.Nil(err, "failed to claim twice")
		assertions.Zero(rewards.Amount, "rewards are claimed once")
	})

	t.Run("Without Reward Token", func(t *testing.T) {
		assertions := assert.New(t)

		vault := mock.New(mock.Config{Address: "0xbare", Token: token})
		_, err := vault.ClaimRewards(context.TODO(), vaults.ClaimRewardsRequest{Account: "0xa", Destination: "0xb"})
		assertions.ErrorIs(err, mock.ErrNoRewardToken)
	})
}
