package tokens

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrFrozenAccount         = errors.New("account is frozen")
)

const ZeroAddress = "0x0000000000000000000000000000000000000000"

// NormalizeAddress returns the canonical lowercase form used as ledger key
func NormalizeAddress(address string) (normalized string) {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsZeroAddress reports if the address is empty or the null address
func IsZeroAddress(address string) (zero bool) {
	normalized := NormalizeAddress(address)
	return normalized == "" || normalized == ZeroAddress
}

type (
	BalanceRequest struct {
		// Account to query
		Account string
	}
	Balance struct {
		// Account queried
		Account string
		// Balance in minor units
		Amount uint64
	}
	TransferRequest struct {
		// Account sending the funds, the caller of the transfer
		From string
		// Destination account
		To string
		// Amount in minor units
		Amount uint64
	}
	TransferFromRequest struct {
		// Account spending the allowance, the caller of the transfer
		Spender string
		// Account the funds are taken from
		From string
		// Destination account
		To string
		// Amount in minor units
		Amount uint64
	}
	Transfer struct {
		From   string
		To     string
		Amount uint64
	}
	ApproveRequest struct {
		// Account granting the allowance
		Owner string
		// Account allowed to spend
		Spender string
		// Allowance replacing the previous one
		Amount uint64
	}
	AllowanceRequest struct {
		Owner   string
		Spender string
	}
	Allowance struct {
		Owner   string
		Spender string
		Amount  uint64
	}
)

// Token is the fungible token capability set the settlement engine depends on
type Token interface {
	// Address of the token contract
	Address() (address string)

	// Balance of an account
	BalanceOf(ctx context.Context, req BalanceRequest) (balance Balance, err error)

	// Moves funds owned by the caller
	Transfer(ctx context.Context, req TransferRequest) (transfer Transfer, err error)

	// Moves funds using a previously granted allowance
	TransferFrom(ctx context.Context, req TransferFromRequest) (transfer Transfer, err error)

	// Grants an allowance to a spender
	Approve(ctx context.Context, req ApproveRequest) (err error)

	// Queries an allowance
	Allowance(ctx context.Context, req AllowanceRequest) (allowance Allowance, err error)
}
