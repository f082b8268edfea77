package remote_test

import (
	"net/http/httptest"
	"testing"

	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	"anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/tokens/remote"
	"anarchy.ttfm/paytr/tokens/testsuite"
)

func Test_Remote(t *testing.T) {
	backend := mock.New(mock.Config{Address: "0xusdc"})

	server := rpc.NewServer(remote.ErrorCode)
	remote.Register(server, backend)
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()

	token := remote.New(remote.Config{
		Address: "0xusdc",
		Client:  rpc.New(rpc.Config{Url: httpServer.URL}),
	})
	testsuite.Test(t, token, &testsuite.MockGenerator{Token: backend})
}
