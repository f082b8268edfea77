package vaults

import (
	"context"
	"errors"
)

var (
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrUnsupportedAsset   = errors.New("unsupported asset")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrPaused             = errors.New("vault is paused")
)

// Precision of supply rates and utilization, like lending markets do
const RateScale = 1_000_000_000_000_000_000

type (
	SupplyRequest struct {
		// Account supplying, it must have approved the vault for Amount
		Account string
		// Base asset address
		Asset string
		// Amount of base asset in minor units
		Amount uint64
	}
	Supply struct {
		Account string
		Amount  uint64
		// Shares minted to the account
		Shares uint64
	}
	WithdrawRequest struct {
		// Account withdrawing, funds are sent back to it
		Account string
		// Base asset address
		Asset string
		// Exact amount of base asset to receive
		Amount uint64
	}
	Withdraw struct {
		Account string
		Amount  uint64
		// Shares burned from the account
		Shares uint64
	}
	BalanceRequest struct {
		Account string
	}
	Balance struct {
		Account string
		// Shares owned by the account
		Shares uint64
	}
	PreviewRedeemRequest struct {
		Shares uint64
	}
	Preview struct {
		Shares uint64
		// Base asset the shares are currently worth
		Amount uint64
	}
	SupplyRateRequest struct {
		// Utilization scaled by RateScale
		Utilization uint64
	}
	SupplyRate struct {
		Utilization uint64
		// Per second supply rate scaled by RateScale
		Rate uint64
	}
	ClaimRewardsRequest struct {
		// Account that accrued the rewards
		Account string
		// Destination of the reward tokens
		Destination string
	}
	Rewards struct {
		// Reward token address
		Token  string
		Amount uint64
	}
)

// Vault is an interest bearing market holding escrowed base asset
type Vault interface {
	// Address of the vault
	Address() (address string)

	// Moves base asset from the account into the vault minting shares
	Supply(ctx context.Context, req SupplyRequest) (supply Supply, err error)

	// Burns the shares needed to send exactly Amount of base asset back.
	// Fails with ErrInsufficientShares when the account can't cover it
	Withdraw(ctx context.Context, req WithdrawRequest) (withdraw Withdraw, err error)

	// Shares owned by an account
	BalanceOf(ctx context.Context, req BalanceRequest) (balance Balance, err error)

	// Base asset value of shares at the current exchange rate
	PreviewRedeem(ctx context.Context, req PreviewRedeemRequest) (preview Preview, err error)

	// Supply rate for the given utilization
	SupplyRate(ctx context.Context, req SupplyRateRequest) (rate SupplyRate, err error)

	// Sends accrued protocol rewards to destination
	ClaimRewards(ctx context.Context, req ClaimRewardsRequest) (rewards Rewards, err error)
}
