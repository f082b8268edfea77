package paytr_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"anarchy.ttfm/paytr/events"
	proxymock "anarchy.ttfm/paytr/feeproxy/mock"
	"anarchy.ttfm/paytr/paytr"
	"anarchy.ttfm/paytr/random"
	"anarchy.ttfm/paytr/tokens"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	"anarchy.ttfm/paytr/vaults"
	vaultmock "anarchy.ttfm/paytr/vaults/mock"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
)

const (
	owner      = "0x00000000000000000000000000000000000000aa"
	account    = "0x00000000000000000000000000000000000000bb"
	usdc       = "0x00000000000000000000000000000000000000cc"
	comet      = "0x00000000000000000000000000000000000000dd"
	comp       = "0x00000000000000000000000000000000000000ee"
	request    = "0x00000000000000000000000000000000000000ff"
	requestFee = "0x0000000000000000000000000000000000000f0e"

	day = 24 * time.Hour
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	ctrl     *paytr.Controller
	token    *tokenmock.Mock
	reward   *tokenmock.Mock
	vault    *vaultmock.Mock
	proxy    *proxymock.Mock
	recorder *events.Recorder
	clock    *clock
	db       *badger.DB
}

func newFixture(t *testing.T, options ...func(config *paytr.Config)) (f *fixture) {
	assertions := assert.New(t)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	assertions.Nil(err, "failed to open database")
	t.Cleanup(func() { db.Close() })

	f = &fixture{
		token:    tokenmock.New(tokenmock.Config{Address: usdc}),
		reward:   tokenmock.New(tokenmock.Config{Address: comp}),
		recorder: &events.Recorder{},
		clock:    &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		db:       db,
	}
	f.vault = vaultmock.New(vaultmock.Config{
		Address:      comet,
		Token:        f.token,
		RewardToken:  f.reward,
		SharesOffset: 2,
		BaseRate:     vaults.RateScale / 1_000_000_000,
		Slope:        vaults.RateScale / 100_000_000,
	})
	f.proxy = proxymock.New(proxymock.Config{Address: request, Tokens: []tokens.Token{f.token}})

	config := paytr.Config{
		DB:                   db,
		Token:                f.token,
		Account:              account,
		Owner:                owner,
		DefaultVault:         comet,
		DefaultVaultDecimals: 6,
		Vaults:               []vaults.Vault{f.vault},
		DefaultFeeRouting:    requestFee,
		FeeProxy:             f.proxy,
		Publisher:            f.recorder,
		Now:                  f.clock.Now,
	}
	for _, option := range options {
		option(&config)
	}

	f.ctrl, err = paytr.New(config)
	assertions.Nil(err, "failed to create controller")
	return f
}

func (f *fixture) balance(t *testing.T, address string) uint64 {
	balance, err := f.token.BalanceOf(context.TODO(), tokens.BalanceRequest{Account: address})
	assert.Nil(t, err, "failed to query balance")
	return balance.Amount
}

// fund mints the escrow to payer and approves the controller for it
func (f *fixture) fund(t *testing.T, payer string, amount uint64) {
	assertions := assert.New(t)

	err := f.token.Mint(payer, amount)
	assertions.Nil(err, "failed to mint")
	err = f.token.Approve(context.TODO(), tokens.ApproveRequest{Owner: payer, Spender: account, Amount: amount})
	assertions.Nil(err, "failed to approve controller")
}

// pay escrows a fee-less invoice due in dueIn, zero dueIn leaves the due date unset
func (f *fixture) pay(t *testing.T, key paytr.InvoiceKey, amount uint64, dueIn time.Duration) (invoice paytr.Invoice) {
	assertions := assert.New(t)

	f.fund(t, key.Payer, amount)
	req := f.request(key, amount, dueIn)
	invoice, err := f.ctrl.PayInvoice(context.TODO(), &req)
	assertions.Nil(err, "failed to pay invoice")
	return invoice
}

func (f *fixture) request(key paytr.InvoiceKey, amount uint64, dueIn time.Duration) (req paytr.PayInvoice) {
	req = paytr.PayInvoice{
		From:      key.Payer,
		Asset:     usdc,
		Payee:     key.Payee,
		Amount:    amount,
		Reference: key.Reference,
	}
	if dueIn != 0 {
		req.DueDate = f.clock.Now().Add(dueIn).Unix()
	}
	return req
}

// payOut quotes and settles keys
func (f *fixture) payOut(keys ...paytr.InvoiceKey) (settlement paytr.Settlement, err error) {
	ctx := context.TODO()
	totals, err := f.ctrl.Quote(ctx, keys)
	if err != nil {
		return settlement, err
	}
	return f.ctrl.PayOut(ctx, &paytr.PayOut{Invoices: keys, Totals: totals})
}

func newKey() (key paytr.InvoiceKey) {
	return paytr.InvoiceKey{
		Payer:     random.Address(random.PseudoRand),
		Payee:     random.Address(random.PseudoRand),
		Reference: random.Reference(random.PseudoRand, 9),
	}
}
