package remote

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/vaults"
)

const (
	MethodSupply        = "vault_supply"
	MethodWithdraw      = "vault_withdraw"
	MethodBalanceOf     = "vault_balanceOf"
	MethodPreviewRedeem = "vault_previewRedeem"
	MethodSupplyRate    = "vault_getSupplyRate"
	MethodClaimRewards  = "vault_claimRewards"
)

var codes = []struct {
	code int
	err  error
}{
	{code: 2001, err: vaults.ErrInsufficientShares},
	{code: 2002, err: vaults.ErrUnsupportedAsset},
	{code: 2003, err: vaults.ErrInvalidAmount},
	{code: 2004, err: vaults.ErrPaused},
}

// ErrorCode maps vault errors into JSON-RPC codes
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
	// Address of the vault contract
	Address string
	// Client connected to the node serving the vault
	Client *rpc.Client
}

// Vault talks to a vault served over JSON-RPC
type Vault struct {
	address string
	client  *rpc.Client
}

var _ vaults.Vault = (*Vault)(nil)

func New(config Config) (vault *Vault) {
	return &Vault{
		address: tokens.NormalizeAddress(config.Address),
		client:  config.Client,
	}
}

func (v *Vault) Address() (address string) { return v.address }

func (v *Vault) Supply(ctx context.Context, req vaults.SupplyRequest) (supply vaults.Supply, err error) {
	err = v.client.Call(ctx, MethodSupply, &req, &supply)
	if err != nil {
		return supply, fmt.Errorf("failed to supply: %w", fromRpc(err))
	}
	return supply, nil
}

func (v *Vault) Withdraw(ctx context.Context, req vaults.WithdrawRequest) (withdraw vaults.Withdraw, err error) {
	err = v.client.Call(ctx, MethodWithdraw, &req, &withdraw)
	if err != nil {
		return withdraw, fmt.Errorf("failed to withdraw: %w", fromRpc(err))
	}
	return withdraw, nil
}

func (v *Vault) BalanceOf(ctx context.Context, req vaults.BalanceRequest) (balance vaults.Balance, err error) {
	err = v.client.Call(ctx, MethodBalanceOf, &req, &balance)
	if err != nil {
		return balance, fmt.Errorf("failed to query shares: %w", fromRpc(err))
	}
	return balance, nil
}

func (v *Vault) PreviewRedeem(ctx context.Context, req vaults.PreviewRedeemRequest) (preview vaults.Preview, err error) {
	err = v.client.Call(ctx, MethodPreviewRedeem, &req, &preview)
	if err != nil {
		return preview, fmt.Errorf("failed to preview redeem: %w", fromRpc(err))
	}
	return preview, nil
}

func (v *Vault) SupplyRate(ctx context.Context, req vaults.SupplyRateRequest) (rate vaults.SupplyRate, err error) {
	err = v.client.Call(ctx, MethodSupplyRate, &req, &rate)
	if err != nil {
		return rate, fmt.Errorf("failed to query supply rate: %w", fromRpc(err))
	}
	return rate, nil
}

func (v *Vault) ClaimRewards(ctx context.Context, req vaults.ClaimRewardsRequest) (rewards vaults.Rewards, err error) {
	err = v.client.Call(ctx, MethodClaimRewards, &req, &rewards)
	if err != nil {
		return rewards, fmt.Errorf("failed to claim rewards: %w", fromRpc(err))
	}
	return rewards, nil
}

// Register exposes a vault implementation on server
func Register(server *rpc.Server, vault vaults.Vault) {
	server.Register(MethodSupply, rpc.Method(vault.Supply))
	server.Register(MethodWithdraw, rpc.Method(vault.Withdraw))
	server.Register(MethodBalanceOf, rpc.Method(vault.BalanceOf))
	server.Register(MethodPreviewRedeem, rpc.Method(vault.PreviewRedeem))
	server.Register(MethodSupplyRate, rpc.Method(vault.SupplyRate))
	server.Register(MethodClaimRewards, rpc.Method(vault.ClaimRewards))
}
