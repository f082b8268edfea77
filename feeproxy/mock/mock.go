package mock

import (
	"context"
	"fmt"
	"sync"

	"anarchy.ttfm/paytr/feeproxy"
	"anarchy.ttfm/paytr/tokens"
)

type Config struct {
	// Address of the proxy
	Address string
	// Tokens the proxy can forward
	Tokens []tokens.Token
}

// Mock forwards payments through the supported tokens and keeps the log of references
type Mock struct {
	mu        sync.Mutex
	address   string
	tokens    map[string]tokens.Token
	transfers []feeproxy.Transfer
}

var _ feeproxy.Proxy = (*Mock)(nil)

func New(config Config) *Mock {
	m := &Mock{
		address: tokens.NormalizeAddress(config.Address),
		tokens:  make(map[string]tokens.Token, len(config.Tokens)),
	}
	for _, token := range config.Tokens {
		m.tokens[token.Address()] = token
	}
	return m
}

func (m *Mock) Address() (address string) { return m.address }

// Transfers forwarded so far
func (m *Mock) Transfers() (transfers []feeproxy.Transfer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]feeproxy.Transfer(nil), m.transfers...)
}

func (m *Mock) TransferWithReferenceAndFee(ctx context.Context, req feeproxy.TransferRequest) (transfer feeproxy.Transfer, err error) {
	token, found := m.tokens[tokens.NormalizeAddress(req.Token)]
	if !found {
		return transfer, fmt.Errorf("%w: %s", feeproxy.ErrUnsupportedToken, req.Token)
	}

	_, err = token.TransferFrom(ctx, tokens.TransferFromRequest{
		Spender: m.address,
		From:    req.Sender,
		To:      req.To,
		Amount:  req.Amount,
	})
	if err != nil {
		return transfer, fmt.Errorf("failed to forward payment: %w", err)
	}

	if req.FeeAmount > 0 {
		_, err = token.TransferFrom(ctx, tokens.TransferFromRequest{
			Spender: m.address,
			From:    req.Sender,
			To:      req.FeeAddress,
			Amount:  req.FeeAmount,
		})
		if err != nil {
			// The proxy call is atomic, undo the payment leg
			_, undoErr := token.Transfer(ctx, tokens.TransferRequest{From: req.To, To: req.Sender, Amount: req.Amount})
			if undoErr != nil {
				return transfer, fmt.Errorf("failed to forward fee: %w (undo failed: %v)", err, undoErr)
			}
			return transfer, fmt.Errorf("failed to forward fee: %w", err)
		}
	}

	transfer = feeproxy.Transfer{
		Token:      token.Address(),
		To:         tokens.NormalizeAddress(req.To),
		Amount:     req.Amount,
		Reference:  req.Reference,
		FeeAmount:  req.FeeAmount,
		FeeAddress: tokens.NormalizeAddress(req.FeeAddress),
	}

	m.mu.Lock()
	m.transfers = append(m.transfers, transfer)
	m.mu.Unlock()

	return transfer, nil
}
