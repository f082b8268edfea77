package rpc_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	"github.com/gabstv/httpdigest"
	"github.com/stretchr/testify/assert"
)

var errBoom = errors.New("boom")

type (
	addRequest struct {
		A uint64 `json:"a"`
		B uint64 `json:"b"`
	}
	addResult struct {
		Sum uint64 `json:"sum"`
	}
)

func newServer() (server *rpc.Server) {
	server = rpc.NewServer(func(err error) (code int) {
		if errors.Is(err, errBoom) {
			return 1000
		}
		return 0
	})
	server.Register("add", rpc.Method(func(ctx context.Context, req addRequest) (res addResult, err error) {
		return addResult{Sum: req.A + req.B}, nil
	}))
	server.Register("boom", rpc.Method(func(ctx context.Context, req struct{}) (res struct{}, err error) {
		return res, errBoom
	}))
	return server
}

func Test_Client(t *testing.T) {
	var headers http.Header
	server := newServer()
	httpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		server.ServeHTTP(w, r)
	}))
	defer httpServer.Close()

	client := rpc.New(rpc.Config{
		Url:           httpServer.URL,
		CustomHeaders: map[string]string{"X-Network": "simulated"},
		Client: &http.Client{
			Transport: httpdigest.New("username", "password"),
		},
	})

	t.Run("Succeed", func(t *testing.T) {
		assertions := assert.New(t)

		var result addResult
		err := client.Call(context.TODO(), "add", addRequest{A: 1, B: 2}, &result)
		assertions.Nil(err, "failed to call")
		assertions.Equal(uint64(3), result.Sum)
		assertions.Equal("simulated", headers.Get("X-Network"), "custom header not sent")
	})
	t.Run("Error Code", func(t *testing.T) {
		assertions := assert.New(t)

		err := client.Call(context.TODO(), "boom", nil, nil)
		var rpcErr *rpc.Error
		if assertions.ErrorAs(err, &rpcErr) {
			assertions.Equal(1000, rpcErr.Code)
			assertions.Contains(rpcErr.Message, "boom")
		}
	})
	t.Run("Method Not Found", func(t *testing.T) {
		assertions := assert.New(t)

		err := client.Call(context.TODO(), "missing", nil, nil)
		var rpcErr *rpc.Error
		if assertions.ErrorAs(err, &rpcErr) {
			assertions.Equal(rpc.CodeMethodNotFound, rpcErr.Code)
		}
	})
	t.Run("Invalid Params", func(t *testing.T) {
		assertions := assert.New(t)

		err := client.Call(context.TODO(), "add", "not an object", nil)
		var rpcErr *rpc.Error
		if assertions.ErrorAs(err, &rpcErr) {
			assertions.Equal(rpc.CodeInvalidParams, rpcErr.Code)
		}
	})
}
