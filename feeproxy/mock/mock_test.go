package mock_test

import (
	"context"
	"testing"

	"anarchy.ttfm/paytr/feeproxy"
	"anarchy.ttfm/paytr/feeproxy/mock"
	"anarchy.ttfm/paytr/tokens"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"github.com/stretchr/testify/assert"
)

func Test_Mock(t *testing.T) {
	token := tokenmock.New(tokenmock.Config{Address: "0xusdc"})
	proxy := mock.New(mock.Config{Address: "0xproxy", Tokens: []tokens.Token{token}})

	balanceOf := func(assertions *assert.Assertions, account string) uint64 {
		balance, err := token.BalanceOf(context.TODO(), tokens.BalanceRequest{Account: account})
		assertions.Nil(err, "failed to query balance")
		return balance.Amount
	}

	t.Run("Succeed", func(t *testing.T) {
		assertions := assert.New(t)

		ctx := context.TODO()
		err := token.Mint("0xsender", 1_100)
		assertions.Nil(err, "failed to mint")
		err = token.Approve(ctx, tokens.ApproveRequest{Owner: "0xsender", Spender: proxy.Address(), Amount: 1_100})
		assertions.Nil(err, "failed to approve")

		transfer, err := proxy.TransferWithReferenceAndFee(ctx, feeproxy.TransferRequest{
			Sender:     "0xsender",
			Token:      "0xUSDC",
			To:         "0xpayee",
			Amount:     1_000,
			Reference:  "0xbeef",
			FeeAmount:  100,
			FeeAddress: "0xfees",
		})
		assertions.Nil(err, "failed to transfer")
		assertions.Equal("0xbeef", transfer.Reference)
		assertions.Equal(uint64(1_000), balanceOf(assertions, "0xpayee"))
		assertions.Equal(uint64(100), balanceOf(assertions, "0xfees"))
		assertions.Zero(balanceOf(assertions, "0xsender"))
		assertions.Len(proxy.Transfers(), 1, "transfer should be logged")
	})

	t.Run("Fee Failure Reverts", func(t *testing.T) {
		assertions := assert.New(t)

		ctx := context.TODO()
		err := token.Mint("0xshort", 1_000)
		assertions.Nil(err, "failed to mint")
		err = token.Approve(ctx, tokens.ApproveRequest{Owner: "0xshort", Spender: proxy.Address(), Amount: 1_100})
		assertions.Nil(err, "failed to approve")

		_, err = proxy.TransferWithReferenceAndFee(ctx, feeproxy.TransferRequest{
			Sender:     "0xshort",
			Token:      "0xusdc",
			To:         "0xpayee2",
			Amount:     1_000,
			FeeAmount:  100,
			FeeAddress: "0xfees",
		})
		assertions.ErrorIs(err, tokens.ErrInsufficientBalance)
		assertions.Equal(uint64(1_000), balanceOf(assertions, "0xshort"), "payment leg should be undone")
		assertions.Zero(balanceOf(assertions, "0xpayee2"))
	})

	t.Run("Unsupported Token", func(t *testing.T) {
		assertions := assert.New(t)

		_, err := proxy.TransferWithReferenceAndFee(context.TODO(), feeproxy.TransferRequest{Token: "0xdai"})
		assertions.ErrorIs(err, feeproxy.ErrUnsupportedToken)
	})
}
