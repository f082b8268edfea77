package testsuite

import (
	"context"

	"anarchy.ttfm/paytr/tokens/mock"
)

type MockGenerator struct {
	Token *mock.Mock
}

func (g *MockGenerator) TransferAmount() (amount uint64) {
	return 1_500_000_000 // 1500 units of a 6 decimals stablecoin
}

func (g *MockGenerator) Fund(ctx context.Context, account string, amount uint64) (err error) {
	return g.Token.Mint(account, amount)
}
