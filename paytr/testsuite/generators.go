package testsuite

import (
	"context"

	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	vaultmock "anarchy.ttfm/paytr/vaults/mock"
)

type MockGenerator struct {
	Token *tokenmock.Mock
	Vault *vaultmock.Mock
}

func (g *MockGenerator) Amount(index int) (amount uint64) {
	return uint64(index+1) * 750_000_000
}

func (g *MockGenerator) Fund(ctx context.Context, account string, amount uint64) (err error) {
	return g.Token.Mint(account, amount)
}

func (g *MockGenerator) Accrue(ctx context.Context, bps uint64) (err error) {
	_, err = g.Vault.AccrueBps(bps)
	return err
}
