package paytr

import (
	"context"
	"errors"
	"fmt"

	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/vaults"
)

// WithdrawResult is what a vault returned for a request. Shortfall is set when it
// could not return everything, this is not an error
type WithdrawResult struct {
	Requested uint64 `json:"requested"`
	Received  uint64 `json:"received"`
	Shortfall uint64 `json:"shortfall"`
}

func (c *Controller) tokenBalance(ctx context.Context) (amount uint64, err error) {
	balance, err := c.token.BalanceOf(ctx, tokens.BalanceRequest{Account: c.account})
	if err != nil {
		return 0, fmt.Errorf("failed to query base asset balance: %w", err)
	}
	return balance.Amount, nil
}

func (c *Controller) shares(ctx context.Context, vault vaults.Vault) (shares uint64, err error) {
	balance, err := vault.BalanceOf(ctx, vaults.BalanceRequest{Account: c.account})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to query shares: %w", ErrVaultRejected, err)
	}
	return balance.Shares, nil
}

// deposit supplies amount of base asset held by the controller to vault. The shares are
// measured from the balance change since the exchange rate is not 1:1
func (c *Controller) deposit(ctx context.Context, vault vaults.Vault, amount uint64) (shares uint64, err error) {
	err = c.token.Approve(ctx, tokens.ApproveRequest{Owner: c.account, Spender: vault.Address(), Amount: amount})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to approve vault: %w", ErrVaultRejected, err)
	}

	before, err := c.shares(ctx, vault)
	if err != nil {
		return 0, err
	}

	_, err = vault.Supply(ctx, vaults.SupplyRequest{
		Account: c.account,
		Asset:   c.token.Address(),
		Amount:  amount,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to supply: %w", ErrVaultRejected, err)
	}

	after, err := c.shares(ctx, vault)
	if err != nil {
		return 0, err
	}
	if after < before {
		return 0, fmt.Errorf("%w: shares decreased after supply", ErrVaultRejected)
	}
	return after - before, nil
}

// withdraw asks vault for exactly amount. When the controller shares can't cover it,
// everything they are worth is withdrawn and the difference reported as shortfall
func (c *Controller) withdraw(ctx context.Context, vault vaults.Vault, amount uint64) (result WithdrawResult, err error) {
	result.Requested = amount

	before, err := c.tokenBalance(ctx)
	if err != nil {
		return result, err
	}

	request := vaults.WithdrawRequest{
		Account: c.account,
		Asset:   c.token.Address(),
		Amount:  amount,
	}
	_, err = vault.Withdraw(ctx, request)
	if errors.Is(err, vaults.ErrInsufficientShares) {
		var shares uint64
		shares, err = c.shares(ctx, vault)
		if err != nil {
			return result, err
		}

		var preview vaults.Preview
		preview, err = vault.PreviewRedeem(ctx, vaults.PreviewRedeemRequest{Shares: shares})
		if err != nil {
			return result, fmt.Errorf("%w: failed to preview redeem: %w", ErrVaultRejected, err)
		}

		request.Amount = min(preview.Amount, amount)
		if request.Amount > 0 {
			_, err = vault.Withdraw(ctx, request)
		}
	}
	if err != nil {
		return result, fmt.Errorf("%w: failed to withdraw: %w", ErrVaultRejected, err)
	}

	after, err := c.tokenBalance(ctx)
	if err != nil {
		return result, err
	}
	if after > before {
		result.Received = after - before
	}
	if result.Received < amount {
		result.Shortfall = amount - result.Received
	}
	return result, nil
}
