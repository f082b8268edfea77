package paytr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"anarchy.ttfm/paytr/events"
	"anarchy.ttfm/paytr/feeproxy"
	"anarchy.ttfm/paytr/tokens"
	"anarchy.ttfm/paytr/vaults"
	badger "github.com/dgraph-io/badger/v4"
)

// InterestRecipient decides who receives the distributable interest of an invoice
type InterestRecipient string

const (
	InterestToPayee InterestRecipient = "payee"
	InterestToPayer InterestRecipient = "payer"
)

type Controller struct {
	mu                sync.Mutex
	db                *badger.DB
	token             tokens.Token
	account           string
	defaultVault      string
	vaults            map[string]vaults.Vault
	proxy             feeproxy.Proxy
	publisher         events.Publisher
	now               func() time.Time
	interestRecipient InterestRecipient
}

type Config struct {
	// Badger database holding the ledger
	DB *badger.DB
	// Base asset. Every invoice is denominated in it
	Token tokens.Token
	// Address of the controller itself. Escrowed shares and the owner float belong to it
	Account string
	// Initial owner
	Owner string
	// Vault used when a payment doesn't name one, allow-listed on first start
	DefaultVault         string
	DefaultVaultDecimals uint8
	// Every vault the controller can reach. Allow-listing decides which ones are usable
	Vaults []vaults.Vault
	// Fee routing address allow-listed on first start. Optional
	DefaultFeeRouting string
	// Contract forwarding fees with references. Optional
	FeeProxy feeproxy.Proxy
	// Parameters used on first start. DefaultParameters when zero
	Parameters Parameters
	// Receives committed events. Optional
	Publisher events.Publisher
	// Clock, time.Now when nil
	Now func() time.Time
	// InterestToPayee when empty
	InterestRecipient InterestRecipient
}

func (config *Config) validate() (err error) {
	switch {
	case config.DB == nil:
		return errors.New("no database")
	case config.Token == nil:
		return errors.New("no base asset")
	case tokens.IsZeroAddress(config.Account):
		return errors.New("no controller account")
	case tokens.IsZeroAddress(config.Owner):
		return errors.New("no owner")
	case tokens.IsZeroAddress(config.DefaultVault):
		return errors.New("no default vault")
	}
	switch config.InterestRecipient {
	case InterestToPayee, InterestToPayer:
	default:
		return fmt.Errorf("unknown interest recipient: %s", config.InterestRecipient)
	}
	return config.Parameters.Validate()
}

// New prepares a controller. The database is seeded with the configured owner, parameters,
// default vault and fee routing address only when it holds no state yet
func New(config Config) (ctrl *Controller, err error) {
	if config.Parameters == (Parameters{}) {
		config.Parameters = DefaultParameters()
	}
	if config.InterestRecipient == "" {
		config.InterestRecipient = InterestToPayee
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	err = config.validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ctrl = &Controller{
		db:                config.DB,
		token:             config.Token,
		account:           tokens.NormalizeAddress(config.Account),
		defaultVault:      tokens.NormalizeAddress(config.DefaultVault),
		vaults:            make(map[string]vaults.Vault, len(config.Vaults)),
		proxy:             config.FeeProxy,
		publisher:         config.Publisher,
		now:               config.Now,
		interestRecipient: config.InterestRecipient,
	}
	for _, vault := range config.Vaults {
		ctrl.vaults[vault.Address()] = vault
	}
	defaultVault := ctrl.defaultVault
	if _, found := ctrl.vaults[defaultVault]; !found {
		return nil, fmt.Errorf("invalid config: default vault %s has no backend", defaultVault)
	}

	err = ctrl.db.Update(func(txn *badger.Txn) (err error) {
		_, err = txn.Get(ownerKey)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("failed to query owner: %w", err)
		}

		err = txn.Set(ownerKey, []byte(tokens.NormalizeAddress(config.Owner)))
		if err != nil {
			return fmt.Errorf("failed to set owner: %w", err)
		}
		err = txn.Set(parametersKey, config.Parameters.Bytes())
		if err != nil {
			return fmt.Errorf("failed to set parameters: %w", err)
		}
		info := VaultInfo{Address: defaultVault, Decimals: config.DefaultVaultDecimals, Active: true}
		err = txn.Set(vaultKey(defaultVault), info.Bytes())
		if err != nil {
			return fmt.Errorf("failed to allow default vault: %w", err)
		}
		if !tokens.IsZeroAddress(config.DefaultFeeRouting) {
			address := tokens.NormalizeAddress(config.DefaultFeeRouting)
			err = txn.Set(feeRoutingKey(address), []byte{1})
			if err != nil {
				return fmt.Errorf("failed to allow fee routing address: %w", err)
			}
			err = txn.Set(defaultFeeRoutingKey, []byte(address))
			if err != nil {
				return fmt.Errorf("failed to set default fee routing address: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed database: %w", err)
	}
	return ctrl, nil
}

// Account is the address holding the escrow
func (c *Controller) Account() (account string) { return c.account }

// BaseAsset is the address of the token invoices are paid in
func (c *Controller) BaseAsset() (asset string) { return c.token.Address() }

type guardKey struct{}

// enter serialises mutating calls. Calls made from inside a token or vault callback carry
// the marker in their context and are refused instead of deadlocking
func (c *Controller) enter(ctx context.Context) (guarded context.Context, leave func(), err error) {
	if ctx.Value(guardKey{}) == c {
		return ctx, nil, ErrReentrantCall
	}
	c.mu.Lock()
	return context.WithValue(ctx, guardKey{}, c), c.mu.Unlock, nil
}

func (c *Controller) vault(address string) (vault vaults.Vault, err error) {
	vault, found := c.vaults[tokens.NormalizeAddress(address)]
	if !found {
		return nil, fmt.Errorf("%w: no backend for %s", ErrVaultNotAllowed, address)
	}
	return vault, nil
}

func (c *Controller) checkAsset(asset string) (err error) {
	if tokens.NormalizeAddress(asset) != c.token.Address() {
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, asset)
	}
	return nil
}
