package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"anarchy.ttfm/paytr/decimal"
	"anarchy.ttfm/paytr/events"
	eventsredis "anarchy.ttfm/paytr/events/redis"
	"anarchy.ttfm/paytr/feeproxy"
	proxymock "anarchy.ttfm/paytr/feeproxy/mock"
	"anarchy.ttfm/paytr/internal/chainrpc/rpc"
	"anarchy.ttfm/paytr/paytr"
	"anarchy.ttfm/paytr/tokens"
	tokenmock "anarchy.ttfm/paytr/tokens/mock"
	tokenremote "anarchy.ttfm/paytr/tokens/remote"
	"anarchy.ttfm/paytr/vaults"
	vaultmock "anarchy.ttfm/paytr/vaults/mock"
	vaultremote "anarchy.ttfm/paytr/vaults/remote"
	"github.com/dgraph-io/badger/v4"
	"github.com/gabstv/httpdigest"
	"github.com/redis/go-redis/v9"
)

const (
	BackendSimulated = "simulated"
	BackendRpc       = "rpc"
)

var ErrUnknownBackend = errors.New("unknown backend")

// Yaml configuration reference
type (
	Endpoint struct {
		Url      string            `yaml:"url"`
		Username *string           `yaml:"username,omitempty"`
		Password *string           `yaml:"password,omitempty"`
		Headers  map[string]string `yaml:"headers,omitempty"`
	}
	Vault struct {
		Address  string `yaml:"address"`
		Decimals uint8  `yaml:"decimals"`
		// Only for the rpc backend
		Endpoint Endpoint `yaml:"endpoint"`
	}
	Simulated struct {
		// Initial balances of the simulated base asset
		Genesis map[string]decimal.Decimal `yaml:"genesis"`
		// Supply rate model of the simulated vaults, scaled by 1e18
		BaseRate uint64 `yaml:"base-rate"`
		Slope    uint64 `yaml:"slope"`
		// Address of the simulated fee proxy, disabled when empty
		FeeProxy string `yaml:"fee-proxy"`
		// Address of the simulated reward token, disabled when empty
		RewardToken string `yaml:"reward-token"`
	}
	Rpc struct {
		Token Endpoint `yaml:"token"`
	}
	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		Channel  string `yaml:"channel"`
	}
	Parameters struct {
		FeeModifier        uint64          `yaml:"fee-modifier"`
		MinDueDate         time.Duration   `yaml:"min-due-date"`
		MaxDueDate         time.Duration   `yaml:"max-due-date"`
		MinAmount          decimal.Decimal `yaml:"min-amount"`
		MaxAmount          decimal.Decimal `yaml:"max-amount"`
		MaxPayoutArraySize uint64          `yaml:"max-payout-array-size"`
	}
	Config struct {
		ProcessInterval   time.Duration           `yaml:"process-interval"`
		ListenAddress     string                  `yaml:"listen-address"`
		DatabasePath      string                  `yaml:"database-path"`
		AllowedOrigins    []string                `yaml:"allowed-origins"`
		JwtSecret         string                  `yaml:"jwt-secret"`
		Backend           string                  `yaml:"backend"`
		BaseAsset         string                  `yaml:"base-asset"`
		Account           string                  `yaml:"account"`
		Owner             string                  `yaml:"owner"`
		InterestRecipient paytr.InterestRecipient `yaml:"interest-recipient"`
		DefaultFeeRouting string                  `yaml:"default-fee-routing"`
		// Parameters on first start, the deployment defaults when omitted
		Parameters *Parameters `yaml:"parameters,omitempty"`
		// The first one is the default vault
		Vaults    []Vault   `yaml:"vaults"`
		Simulated Simulated `yaml:"simulated"`
		Rpc       Rpc       `yaml:"rpc"`
		Redis     *Redis    `yaml:"redis,omitempty"`
	}
)

func (e *Endpoint) Client() (client *rpc.Client) {
	var httpClient http.Client
	if e.Username != nil && e.Password != nil {
		httpClient.Transport = httpdigest.New(*e.Username, *e.Password)
	}
	return rpc.New(rpc.Config{
		Url:           e.Url,
		CustomHeaders: e.Headers,
		Client:        &httpClient,
	})
}

func (p *Parameters) Compile() (params paytr.Parameters, err error) {
	params = paytr.Parameters{
		FeeModifier:        p.FeeModifier,
		MinDueDate:         p.MinDueDate,
		MaxDueDate:         p.MaxDueDate,
		MaxPayoutArraySize: p.MaxPayoutArraySize,
	}
	params.MinAmount, err = p.MinAmount.ToUint64()
	if err != nil {
		return params, fmt.Errorf("invalid min-amount: %w", err)
	}
	params.MaxAmount, err = p.MaxAmount.ToUint64()
	if err != nil {
		return params, fmt.Errorf("invalid max-amount: %w", err)
	}
	return params, params.Validate()
}

func (c *Config) simulated() (token tokens.Token, backends []vaults.Vault, proxy feeproxy.Proxy, err error) {
	mock := tokenmock.New(tokenmock.Config{Address: c.BaseAsset})
	for address, amount := range c.Simulated.Genesis {
		minor, err := amount.ToUint64()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid genesis balance of %s: %w", address, err)
		}
		err = mock.Mint(address, minor)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to mint genesis balance of %s: %w", address, err)
		}
	}

	var rewardToken vaultmock.Minter
	if c.Simulated.RewardToken != "" {
		rewardToken = tokenmock.New(tokenmock.Config{Address: c.Simulated.RewardToken})
	}
	for _, vault := range c.Vaults {
		backends = append(backends, vaultmock.New(vaultmock.Config{
			Address:      vault.Address,
			Token:        mock,
			RewardToken:  rewardToken,
			SharesOffset: 2,
			BaseRate:     c.Simulated.BaseRate,
			Slope:        c.Simulated.Slope,
		}))
	}

	if c.Simulated.FeeProxy != "" {
		proxy = proxymock.New(proxymock.Config{Address: c.Simulated.FeeProxy, Tokens: []tokens.Token{mock}})
	}
	return mock, backends, proxy, nil
}

func (c *Config) remote() (token tokens.Token, backends []vaults.Vault) {
	token = tokenremote.New(tokenremote.Config{
		Address: c.BaseAsset,
		Client:  c.Rpc.Token.Client(),
	})
	for _, vault := range c.Vaults {
		backends = append(backends, vaultremote.New(vaultremote.Config{
			Address: vault.Address,
			Client:  vault.Endpoint.Client(),
		}))
	}
	return token, backends
}

func (c *Config) publisher() (publisher events.Publisher) {
	if c.Redis == nil {
		return events.Log{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Address,
		Password: c.Redis.Password,
	})
	return events.Multi{
		events.Log{},
		eventsredis.New(eventsredis.Config{Client: client, Channel: c.Redis.Channel}),
	}
}

func (c *Config) Compile() (ctrl *paytr.Controller, config paytr.Config, err error) {
	if len(c.Vaults) == 0 {
		return nil, config, errors.New("at least one vault is required")
	}

	config = paytr.Config{
		Account:              c.Account,
		Owner:                c.Owner,
		DefaultVault:         c.Vaults[0].Address,
		DefaultVaultDecimals: c.Vaults[0].Decimals,
		DefaultFeeRouting:    c.DefaultFeeRouting,
		InterestRecipient:    c.InterestRecipient,
		Publisher:            c.publisher(),
	}
	if c.Parameters != nil {
		config.Parameters, err = c.Parameters.Compile()
		if err != nil {
			return nil, config, fmt.Errorf("invalid parameters: %w", err)
		}
	}

	switch c.Backend {
	case BackendSimulated, "":
		config.Token, config.Vaults, config.FeeProxy, err = c.simulated()
		if err != nil {
			return nil, config, err
		}
	case BackendRpc:
		config.Token, config.Vaults = c.remote()
	default:
		return nil, config, fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
	}

	opt := badger.DefaultOptions(c.DatabasePath)
	if c.DatabasePath == "" {
		opt = opt.WithInMemory(true)
	}
	config.DB, err = badger.Open(opt)
	if err != nil {
		return nil, config, fmt.Errorf("failed to open database: %w", err)
	}

	ctrl, err = paytr.New(config)
	if err != nil {
		config.DB.Close()
		return nil, config, err
	}
	return ctrl, config, nil
}
