package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/utils"
	"anarchy.ttfm/paytr/vaults"
)

var ErrNoRewardToken = errors.New("vault has no reward token")

// Minter is a token whose supply can be expanded, used to simulate interest and rewards
type Minter interface {
	tokens.Token
	Mint(account string, amount uint64) (err error)
}

type Config struct {
	// Address of the vault
	Address string
	// Base asset accepted by the vault
	Token Minter
	// Optional protocol reward token
	RewardToken Minter
	// Decimals offset between shares and base asset. 2 means 100 shares per unit on the first deposit
	SharesOffset uint8
	// Supply rate model, scaled by vaults.RateScale
	BaseRate uint64
	Slope    uint64
}

// Mock implements a share based vaults.Vault. Shares keep their count while their value grows with Accrue
type Mock struct {
	mu            sync.Mutex
	address       string
	token         Minter
	rewardToken   Minter
	virtualShares uint64
	totalShares   uint64
	assets        uint64
	shares        map[string]uint64
	rewards       map[string]uint64
	paused        bool
	baseRate      uint64
	slope         uint64
}

var _ vaults.Vault = (*Mock)(nil)

func New(config Config) *Mock {
	m := &Mock{
		address:       tokens.NormalizeAddress(config.Address),
		token:         config.Token,
		rewardToken:   config.RewardToken,
		virtualShares: 1,
		shares:        make(map[string]uint64),
		rewards:       make(map[string]uint64),
		baseRate:      config.BaseRate,
		slope:         config.Slope,
	}
	for range config.SharesOffset {
		m.virtualShares *= 10
	}
	return m
}

func (m *Mock) Address() (address string) { return m.address }

// Pause makes supply and withdraw fail
func (m *Mock) Pause(paused bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.paused = paused
}

// Accrue simulates interest paid by borrowers, increasing the value of every share
func (m *Mock) Accrue(amount uint64) (err error) {
	err = m.token.Mint(m.address, amount)
	if err != nil {
		return fmt.Errorf("failed to mint interest: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets += amount
	return nil
}

// AccrueBps accrues interest proportional to the assets held, in basis points
func (m *Mock) AccrueBps(bps uint64) (accrued uint64, err error) {
	m.mu.Lock()
	assets := m.assets
	m.mu.Unlock()

	accrued, err = utils.MulDiv(assets, bps, 10_000)
	if err != nil {
		return 0, fmt.Errorf("failed to compute interest: %w", err)
	}
	return accrued, m.Accrue(accrued)
}

// Drain removes assets without burning shares, simulating bad debt
func (m *Mock) Drain(amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.assets -= min(amount, m.assets)
}

// AccrueRewards credits reward tokens claimable by account
func (m *Mock) AccrueRewards(account string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rewards[tokens.NormalizeAddress(account)] += amount
}

// Assets held by the vault
func (m *Mock) Assets() (assets uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.assets
}

func (m *Mock) checkAsset(asset string) (err error) {
	if tokens.NormalizeAddress(asset) != m.token.Address() {
		return fmt.Errorf("%w: %s", vaults.ErrUnsupportedAsset, asset)
	}
	return nil
}

func (m *Mock) Supply(ctx context.Context, req vaults.SupplyRequest) (supply vaults.Supply, err error) {
	err = m.checkAsset(req.Asset)
	if err != nil {
		return supply, err
	}
	if req.Amount == 0 {
		return supply, vaults.ErrInvalidAmount
	}

	m.mu.Lock()
	paused := m.paused
	m.mu.Unlock()
	if paused {
		return supply, vaults.ErrPaused
	}

	account := tokens.NormalizeAddress(req.Account)
	_, err = m.token.TransferFrom(ctx, tokens.TransferFromRequest{
		Spender: m.address,
		From:    account,
		To:      m.address,
		Amount:  req.Amount,
	})
	if err != nil {
		return supply, fmt.Errorf("failed to pull base asset: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	minted, err := utils.MulDiv(req.Amount, m.totalShares+m.virtualShares, m.assets+1)
	if err != nil {
		return supply, fmt.Errorf("failed to compute shares: %w", err)
	}

	m.shares[account] += minted
	m.totalShares += minted
	m.assets += req.Amount

	supply = vaults.Supply{
		Account: account,
		Amount:  req.Amount,
		Shares:  minted,
	}
	return supply, nil
}

func (m *Mock) Withdraw(ctx context.Context, req vaults.WithdrawRequest) (withdraw vaults.Withdraw, err error) {
	err = m.checkAsset(req.Asset)
	if err != nil {
		return withdraw, err
	}
	if req.Amount == 0 {
		return withdraw, vaults.ErrInvalidAmount
	}

	account := tokens.NormalizeAddress(req.Account)

	m.mu.Lock()
	if m.paused {
		m.mu.Unlock()
		return withdraw, vaults.ErrPaused
	}

	burned, err := utils.MulDivUp(req.Amount, m.totalShares+m.virtualShares, m.assets+1)
	if err != nil {
		m.mu.Unlock()
		return withdraw, fmt.Errorf("failed to compute shares: %w", err)
	}
	if burned > m.shares[account] || req.Amount > m.assets {
		m.mu.Unlock()
		return withdraw, fmt.Errorf("%w: %d shares needed, %d owned", vaults.ErrInsufficientShares, burned, m.shares[account])
	}

	m.shares[account] -= burned
	m.totalShares -= burned
	m.assets -= req.Amount
	m.mu.Unlock()

	_, err = m.token.Transfer(ctx, tokens.TransferRequest{
		From:   m.address,
		To:     account,
		Amount: req.Amount,
	})
	if err != nil {
		m.mu.Lock()
		m.shares[account] += burned
		m.totalShares += burned
		m.assets += req.Amount
		m.mu.Unlock()
		return withdraw, fmt.Errorf("failed to send base asset: %w", err)
	}

	withdraw = vaults.Withdraw{
		Account: account,
		Amount:  req.Amount,
		Shares:  burned,
	}
	return withdraw, nil
}

func (m *Mock) BalanceOf(ctx context.Context, req vaults.BalanceRequest) (balance vaults.Balance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account := tokens.NormalizeAddress(req.Account)
	balance = vaults.Balance{
		Account: account,
		Shares:  m.shares[account],
	}
	return balance, nil
}

func (m *Mock) PreviewRedeem(ctx context.Context, req vaults.PreviewRedeemRequest) (preview vaults.Preview, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	amount, err := utils.MulDiv(req.Shares, m.assets+1, m.totalShares+m.virtualShares)
	if err != nil {
		return preview, fmt.Errorf("failed to compute value: %w", err)
	}

	preview = vaults.Preview{
		Shares: req.Shares,
		Amount: amount,
	}
	return preview, nil
}

func (m *Mock) SupplyRate(ctx context.Context, req vaults.SupplyRateRequest) (rate vaults.SupplyRate, err error) {
	variable, err := utils.MulDiv(m.slope, req.Utilization, vaults.RateScale)
	if err != nil {
		return rate, fmt.Errorf("failed to compute rate: %w", err)
	}

	rate = vaults.SupplyRate{
		Utilization: req.Utilization,
		Rate:        m.baseRate + variable,
	}
	return rate, nil
}

func (m *Mock) ClaimRewards(ctx context.Context, req vaults.ClaimRewardsRequest) (rewards vaults.Rewards, err error) {
	if m.rewardToken == nil {
		return rewards, ErrNoRewardToken
	}

	account := tokens.NormalizeAddress(req.Account)

	m.mu.Lock()
	amount := m.rewards[account]
	m.rewards[account] = 0
	m.mu.Unlock()

	rewards = vaults.Rewards{
		Token:  m.rewardToken.Address(),
		Amount: amount,
	}
	if amount == 0 {
		return rewards, nil
	}

	err = m.rewardToken.Mint(req.Destination, amount)
	if err != nil {
		m.mu.Lock()
		m.rewards[account] += amount
		m.mu.Unlock()
		return rewards, fmt.Errorf("failed to mint rewards: %w", err)
	}
	return rewards, nil
}
