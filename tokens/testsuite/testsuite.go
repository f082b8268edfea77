package testsuite

import (
	"context"
	"testing"

	"anarchy.ttfm/paytr/random"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/utils"
	"github.com/stretchr/testify/assert"
)

// DataGenerator defines an interface for test data generation.
type DataGenerator interface {
	// TransferAmount returns the amount to send for a transfer.
	TransferAmount() (amount uint64)
	// Fund credits an account out of band
	Fund(ctx context.Context, account string, amount uint64) (err error)
}

// Test runs a comprehensive suite of tests for any Token implementation.
func Test(t *testing.T, token tokens.Token, gen DataGenerator) {
	r := random.Seeded(uint64(len(t.Name())))
	newAccount := func() string { return random.Address(r) }

	t.Run("Empty Balance", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		account := newAccount()
		balance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query balance")
		assertions.Equal(uint64(0), balance.Amount, "new account should have zero balance")
	})

	t.Run("Transfer", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src, dst := newAccount(), newAccount()
		amount := gen.TransferAmount()
		err := gen.Fund(ctx, src, amount)
		assertions.Nil(err, "failed to fund source")

		transfer, err := token.Transfer(ctx, tokens.TransferRequest{From: src, To: dst, Amount: amount / 2})
		assertions.Nil(err, "failed to transfer")
		assertions.Equal(amount/2, transfer.Amount, "invalid transfered amount")
		assertions.Equal(tokens.NormalizeAddress(dst), transfer.To, "invalid destination")

		srcBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: src})
		assertions.Nil(err, "failed to query source balance")
		assertions.Equal(amount-amount/2, srcBalance.Amount, "invalid source balance")

		dstBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: dst})
		assertions.Nil(err, "failed to query destination balance")
		assertions.Equal(amount/2, dstBalance.Amount, "invalid destination balance")
	})

	t.Run("Insufficient Funds", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src, dst := newAccount(), newAccount()
		amount := gen.TransferAmount()
		err := gen.Fund(ctx, src, amount)
		assertions.Nil(err, "failed to fund source")

		_, err = token.Transfer(ctx, tokens.TransferRequest{From: src, To: dst, Amount: amount + 1})
		assertions.ErrorIs(err, tokens.ErrInsufficientBalance, "transfer should fail due to insufficient funds")
	})

	t.Run("Zero Address Destination", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		src := newAccount()
		err := gen.Fund(ctx, src, gen.TransferAmount())
		assertions.Nil(err, "failed to fund source")

		_, err = token.Transfer(ctx, tokens.TransferRequest{From: src, To: tokens.ZeroAddress, Amount: 1})
		assertions.ErrorIs(err, tokens.ErrInvalidAddress, "transfer to the null address should fail")
	})

	t.Run("Allowance", func(t *testing.T) {
		t.Run("TransferFrom Within Allowance", func(t *testing.T) {
			assertions := assert.New(t)

			ctx, cancel := utils.NewContext()
			defer cancel()

			owner, spender, dst := newAccount(), newAccount(), newAccount()
			amount := gen.TransferAmount()
			err := gen.Fund(ctx, owner, amount)
			assertions.Nil(err, "failed to fund owner")

			err = token.Approve(ctx, tokens.ApproveRequest{Owner: owner, Spender: spender, Amount: amount})
			assertions.Nil(err, "failed to approve")

			allowance, err := token.Allowance(ctx, tokens.AllowanceRequest{Owner: owner, Spender: spender})
			assertions.Nil(err, "failed to query allowance")
			assertions.Equal(amount, allowance.Amount, "invalid allowance")

			_, err = token.TransferFrom(ctx, tokens.TransferFromRequest{Spender: spender, From: owner, To: dst, Amount: amount / 4})
			assertions.Nil(err, "failed to transfer from")

			allowance, err = token.Allowance(ctx, tokens.AllowanceRequest{Owner: owner, Spender: spender})
			assertions.Nil(err, "failed to query allowance")
			assertions.Equal(amount-amount/4, allowance.Amount, "allowance should be consumed")

			dstBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: dst})
			assertions.Nil(err, "failed to query destination balance")
			assertions.Equal(amount/4, dstBalance.Amount, "invalid destination balance")
		})

		t.Run("TransferFrom Above Allowance", func(t *testing.T) {
			assertions := assert.New(t)

			ctx, cancel := utils.NewContext()
			defer cancel()

			owner, spender, dst := newAccount(), newAccount(), newAccount()
			amount := gen.TransferAmount()
			err := gen.Fund(ctx, owner, amount)
			assertions.Nil(err, "failed to fund owner")

			err = token.Approve(ctx, tokens.ApproveRequest{Owner: owner, Spender: spender, Amount: amount / 2})
			assertions.Nil(err, "failed to approve")

			_, err = token.TransferFrom(ctx, tokens.TransferFromRequest{Spender: spender, From: owner, To: dst, Amount: amount})
			assertions.ErrorIs(err, tokens.ErrInsufficientAllowance, "transfer should exceed allowance")

			ownerBalance, err := token.BalanceOf(ctx, tokens.BalanceRequest{Account: owner})
			assertions.Nil(err, "failed to query owner balance")
			assertions.Equal(amount, ownerBalance.Amount, "failed transfer must not move funds")
		})

		t.Run("TransferFrom Without Funds", func(t *testing.T) {
			assertions := assert.New(t)

			ctx, cancel := utils.NewContext()
			defer cancel()

			owner, spender, dst := newAccount(), newAccount(), newAccount()
			amount := gen.TransferAmount()

			err := token.Approve(ctx, tokens.ApproveRequest{Owner: owner, Spender: spender, Amount: amount})
			assertions.Nil(err, "failed to approve")

			_, err = token.TransferFrom(ctx, tokens.TransferFromRequest{Spender: spender, From: owner, To: dst, Amount: amount})
			assertions.ErrorIs(err, tokens.ErrInsufficientBalance, "transfer should fail due to insufficient funds")

			allowance, err := token.Allowance(ctx, tokens.AllowanceRequest{Owner: owner, Spender: spender})
			assertions.Nil(err, "failed to query allowance")
			assertions.Equal(amount, allowance.Amount, "failed transfer must not consume allowance")
		})
	})
}
