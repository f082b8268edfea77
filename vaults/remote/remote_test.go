package remote_test

import (
	"net/http/httptest"
	"testing"

	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/vaults"
	"anarchy.ttfm/paytr/vaults/mock"
	"anarchy.ttfm/paytr/vaults/remote"
	"anarchy.ttfm/paytr/vaults/testsuite"
)

func Test_Remote(t *testing.T) {
	token := tokenmock.New(tokenmock.Config{Address: "0xusdc"})
	backend := mock.New(mock.Config{
		Address:      "0xcusdc",
		Token:        token,
		SharesOffset: 2,
		Slope:        vaults.RateScale / 100_000_000,
	})

	server := rpc.NewServer(remote.ErrorCode)
	remote.Register(server, backend)
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	vault := remote.New(remote.Config{
		Address: "0xcusdc",
		Client:  rpc.New(rpc.Config{Url: httpServer.URL}),
	})
	testsuite.Test(t, vault, token, &testsuite.MockGenerator{Token: token, Vault: backend})
}
