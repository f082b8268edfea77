package remote

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	"anarchy.ttfm/paytr/tokens"
)

const (
	MethodBalanceOf    = "token_balanceOf"
	MethodTransfer     = "token_transfer"
	MethodTransferFrom = "token_transferFrom"
	MethodApprove      = "token_approve"
	MethodAllowance    = "token_allowance"
)

var codes = []struct {
	code int
	err  error
}{
	{code: 1001, err: tokens.ErrInsufficientBalance},
	{code: 1002, err: tokens.ErrInsufficientAllowance},
	{code: 1003, err: tokens.ErrInvalidAddress},
	{code: 1004, err: tokens.ErrFrozenAccount},
}

// ErrorCode maps token errors into JSON-RPC codes
func ErrorCode(err error) (code int) {
	for _, entry := range codes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return 0
}

func fromRpc(err error) error {
	var rpcErr *rpc.Error
	if !errors.As(err, &rpcErr) {
		return err
	}
	for _, entry := range codes {
		if entry.code == rpcErr.Code {
			return fmt.Errorf("%w: %s", entry.err, rpcErr.Message)
		}
	}
	return err
}

type Config struct {
	// Address of the token contract
	Address string
	// Client connected to the node serving the token
	Client *rpc.Client
}

// Token talks to a token served over JSON-RPC
type Token struct {
	address string
	client  *rpc.Client
}

var _ tokens.Token = (*Token)(nil)

func New(config Config) (token *Token) {
	return &Token{
		address: tokens.NormalizeAddress(config.Address),
		client:  config.Client,
	}
}

func (t *Token) Address() (address string) { return t.address }

func (t *Token) BalanceOf(ctx context.Context, req tokens.BalanceRequest) (balance tokens.Balance, err error) {
	err = t.client.Call(ctx, MethodBalanceOf, &req, &balance)
	if err != nil {
		return balance, fmt.Errorf("failed to query balance: %w", fromRpc(err))
	}
	return balance, nil
}

func (t *Token) Transfer(ctx context.Context, req tokens.TransferRequest) (transfer tokens.Transfer, err error) {
	err = t.client.Call(ctx, MethodTransfer, &req, &transfer)
	if err != nil {
		return transfer, fmt.Errorf("failed to transfer: %w", fromRpc(err))
	}
	return transfer, nil
}

func (t *Token) TransferFrom(ctx context.Context, req tokens.TransferFromRequest) (transfer tokens.Transfer, err error) {
	err = t.client.Call(ctx, MethodTransferFrom, &req, &transfer)
	if err != nil {
		return transfer, fmt.Errorf("failed to transfer from: %w", fromRpc(err))
	}
	return transfer, nil
}

func (t *Token) Approve(ctx context.Context, req tokens.ApproveRequest) (err error) {
	err = t.client.Call(ctx, MethodApprove, &req, nil)
	if err != nil {
		return fmt.Errorf("failed to approve: %w", fromRpc(err))
	}
	return nil
}

func (t *Token) Allowance(ctx context.Context, req tokens.AllowanceRequest) (allowance tokens.Allowance, err error) {
	err = t.client.Call(ctx, MethodAllowance, &req, &allowance)
	if err != nil {
		return allowance, fmt.Errorf("failed to query allowance: %w", fromRpc(err))
	}
	return allowance, nil
}

// Register exposes a token implementation on server
func Register(server *rpc.Server, token tokens.Token) {
	server.Register(MethodBalanceOf, rpc.Method(token.BalanceOf))
	server.Register(MethodTransfer, rpc.Method(token.Transfer))
	server.Register(MethodTransferFrom, rpc.Method(token.TransferFrom))
	server.Register(MethodApprove, rpc.Method(func(ctx context.Context, req tokens.ApproveRequest) (res struct{}, err error) {
		return res, token.Approve(ctx, req)
	}))
	server.Register(MethodAllowance, rpc.Method(token.Allowance))
}
