package testsuite

import (
	"context"

	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/vaults/mock"
)

type MockGenerator struct {
	Token *tokenmock.Mock
	Vault *mock.Mock
}

func (g *MockGenerator) SupplyAmount() (amount uint64) {
	return 1_500_000_000
}

func (g *MockGenerator) Fund(ctx context.Context, account string, amount uint64) (err error) {
	return g.Token.Mint(account, amount)
}

func (g *MockGenerator) Accrue(ctx context.Context, amount uint64) (err error) {
	return g.Vault.Accrue(amount)
}
