package mock

import (
	"context"
	"sync"

	"anarchy.ttfm/paytr/tokens"
)

// Hook is invoked after every successful balance movement, outside the token lock.
// It receives the context of the call that moved the funds, like a receive callback would
type Hook func(ctx context.Context, transfer tokens.Transfer)

// Mock implements the tokens.Token interface for testing purposes.
type Mock struct {
	mu         sync.Mutex
	address    string
	balances   map[string]uint64
	allowances map[string]map[string]uint64
	frozen     map[string]struct{}
	hooks      []Hook
}

var _ tokens.Token = (*Mock)(nil)

type Config struct {
	// Address of the token contract
	Address string
}

// New creates a new Mock token without any supply
func New(config Config) *Mock {
	m := &Mock{
		address:    tokens.NormalizeAddress(config.Address),
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
		frozen:     make(map[string]struct{}),
	}
	return m
}

func (m *Mock) Address() (address string) { return m.address }

// Mint credits new supply to an account
func (m *Mock) Mint(account string, amount uint64) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account = tokens.NormalizeAddress(account)
	if tokens.IsZeroAddress(account) {
		return tokens.ErrInvalidAddress
	}
	m.balances[account] += amount
	return nil
}

// Freeze makes every transfer from or to the account fail, like a blacklisted stablecoin holder
func (m *Mock) Freeze(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.frozen[tokens.NormalizeAddress(account)] = struct{}{}
}

func (m *Mock) Unfreeze(account string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.frozen, tokens.NormalizeAddress(account))
}

// OnTransfer registers a hook called after every transfer
func (m *Mock) OnTransfer(hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.hooks = append(m.hooks, hook)
}

func (m *Mock) BalanceOf(ctx context.Context, req tokens.BalanceRequest) (balance tokens.Balance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account := tokens.NormalizeAddress(req.Account)
	balance = tokens.Balance{
		Account: account,
		Amount:  m.balances[account],
	}
	return balance, nil
}

// move must be called with the lock held
func (m *Mock) move(from, to string, amount uint64) (transfer tokens.Transfer, err error) {
	if tokens.IsZeroAddress(to) {
		return transfer, tokens.ErrInvalidAddress
	}
	if _, found := m.frozen[from]; found {
		return transfer, tokens.ErrFrozenAccount
	}
	if _, found := m.frozen[to]; found {
		return transfer, tokens.ErrFrozenAccount
	}
	if m.balances[from] < amount {
		return transfer, tokens.ErrInsufficientBalance
	}

	m.balances[from] -= amount
	m.balances[to] += amount

	transfer = tokens.Transfer{
		From:   from,
		To:     to,
		Amount: amount,
	}
	return transfer, nil
}

func (m *Mock) notify(ctx context.Context, transfer tokens.Transfer) {
	m.mu.Lock()
	hooks := make([]Hook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, transfer)
	}
}

func (m *Mock) Transfer(ctx context.Context, req tokens.TransferRequest) (transfer tokens.Transfer, err error) {
	m.mu.Lock()
	transfer, err = m.move(tokens.NormalizeAddress(req.From), tokens.NormalizeAddress(req.To), req.Amount)
	m.mu.Unlock()
	if err != nil {
		return transfer, err
	}

	m.notify(ctx, transfer)
	return transfer, nil
}

func (m *Mock) TransferFrom(ctx context.Context, req tokens.TransferFromRequest) (transfer tokens.Transfer, err error) {
	spender := tokens.NormalizeAddress(req.Spender)
	from := tokens.NormalizeAddress(req.From)

	m.mu.Lock()
	allowed := m.allowances[from][spender]
	if allowed < req.Amount {
		m.mu.Unlock()
		return transfer, tokens.ErrInsufficientAllowance
	}

	transfer, err = m.move(from, tokens.NormalizeAddress(req.To), req.Amount)
	if err != nil {
		m.mu.Unlock()
		return transfer, err
	}
	if req.Amount > 0 {
		m.allowances[from][spender] = allowed - req.Amount
	}
	m.mu.Unlock()

	m.notify(ctx, transfer)
	return transfer, nil
}

func (m *Mock) Approve(ctx context.Context, req tokens.ApproveRequest) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner := tokens.NormalizeAddress(req.Owner)
	spender := tokens.NormalizeAddress(req.Spender)
	if tokens.IsZeroAddress(spender) {
		return tokens.ErrInvalidAddress
	}

	spenders, found := m.allowances[owner]
	if !found {
		spenders = make(map[string]uint64)
		m.allowances[owner] = spenders
	}
	spenders[spender] = req.Amount
	return nil
}

func (m *Mock) Allowance(ctx context.Context, req tokens.AllowanceRequest) (allowance tokens.Allowance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner := tokens.NormalizeAddress(req.Owner)
	spender := tokens.NormalizeAddress(req.Spender)
	allowance = tokens.Allowance{
		Owner:   owner,
		Spender: spender,
		Amount:  m.allowances[owner][spender],
	}
	return allowance, nil
}
