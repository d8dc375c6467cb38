package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Overlap policies for block events that arrive while a pipeline is running
const (
	OverlapCoalesce = "coalesce"
	OverlapDrop     = "drop"
)

// Head source modes
const (
	ModeAuto      = "auto"
	ModeSubscribe = "subscribe"
	ModePoll      = "poll"
)

// Config holds all configuration for the arbitrage bot. It is built once by
// Load and never modified afterwards.
type Config struct {
	RPC      RPCConfig
	Wallet   WalletConfig
	Contract ContractConfig
	Market   MarketConfig
	Listener ListenerConfig
	Engine   EngineConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// RPCConfig holds Ethereum RPC configuration
type RPCConfig struct {
	URL            string
	RetryAttempts  int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// WalletConfig holds the signing key
type WalletConfig struct {
	PrivateKey string
}

// ContractConfig describes the deployed flash-loan arbitrage contract
type ContractConfig struct {
	Address        common.Address
	GasLimit       uint64
	ConfirmTimeout time.Duration
	ExplorerURL    string
}

// PoolConfig identifies one constant-product pool and the router that swaps on it
type PoolConfig struct {
	Name    string
	Address common.Address
	Router  common.Address
}

// MarketConfig holds the traded pair and trade sizing
type MarketConfig struct {
	PoolA           PoolConfig
	PoolB           PoolConfig
	BaseToken       common.Address
	QuoteToken      common.Address
	BaseSymbol      string
	BaseDecimals    uint8
	FlashLoanAmount *uint256.Int
	FeeNumerator    uint64
	FeeDenominator  uint64
	MinProfitUSD    float64 // not enforced by the evaluator
}

// ListenerConfig holds block listener settings
type ListenerConfig struct {
	Mode               string
	PollInterval       time.Duration
	OverlapPolicy      string
	StatsInterval      time.Duration
	SeenCacheSize      int
	ResubscribeBackoff time.Duration
}

// EngineConfig holds pipeline settings
type EngineConfig struct {
	DryRun bool // evaluate and log, never submit
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// LoadOptions tweak how Load finds and overrides configuration
type LoadOptions struct {
	Path   string // explicit config file; searched for when empty
	DryRun bool   // force dry-run regardless of file and environment
}

// Load reads configuration from defaults, an optional config file, a .env
// file and the environment, in increasing order of precedence.
func Load(opts LoadOptions) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	// Environment variable support
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names from the deployment scripts
	_ = v.BindEnv("rpc.url", "ARB_RPC_URL", "RPC_URL_WSS")
	_ = v.BindEnv("wallet.private_key", "ARB_WALLET_PRIVATE_KEY", "PRIVATE_KEY")
	_ = v.BindEnv("contract.address", "ARB_CONTRACT_ADDRESS", "ARBITRAGE_CONTRACT_ADDRESS")

	// Config file support
	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", opts.Path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.flash-arb")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg, err := build(v)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		cfg.Engine.DryRun = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "")
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "1s")
	v.SetDefault("rpc.request_timeout", "30s")

	v.SetDefault("wallet.private_key", "")

	v.SetDefault("contract.address", "")
	v.SetDefault("contract.gas_limit", 1_000_000)
	v.SetDefault("contract.confirm_timeout", "3m")
	v.SetDefault("contract.explorer_url", "https://sepolia.etherscan.io")

	// WETH/DAI on Sepolia
	v.SetDefault("market.pool_a.name", "uniswap")
	v.SetDefault("market.pool_a.address", "0x1a840552B5B49d525BA65d3a27072522435F3E22")
	v.SetDefault("market.pool_a.router", "0xC532a74256D3Db421739eff4C62325Ab08118683")
	v.SetDefault("market.pool_b.name", "sushiswap")
	v.SetDefault("market.pool_b.address", "0x43aE14AB2d525A41793BF256F28A55c15C9b2518")
	v.SetDefault("market.pool_b.router", "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506")
	v.SetDefault("market.base_token", "0x7b79995e5f793A07Bc00c21412e50Ecae098E7f9")
	v.SetDefault("market.quote_token", "0x68194a729C2450ad26072b3D33ADaCbcef39D574")
	v.SetDefault("market.base_symbol", "WETH")
	v.SetDefault("market.base_decimals", 18)
	v.SetDefault("market.flash_loan_amount", "1")
	v.SetDefault("market.fee_numerator", 997)
	v.SetDefault("market.fee_denominator", 1000)
	v.SetDefault("market.min_profit_usd", 5)

	v.SetDefault("listener.mode", ModeAuto)
	v.SetDefault("listener.poll_interval", "12s")
	v.SetDefault("listener.overlap_policy", OverlapCoalesce)
	v.SetDefault("listener.stats_interval", "30s")
	v.SetDefault("listener.seen_cache_size", 256)
	v.SetDefault("listener.resubscribe_backoff", "30s")

	v.SetDefault("engine.dry_run", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

func build(v *viper.Viper) (*Config, error) {
	var errs []error
	addr := func(key string, optional bool) common.Address {
		a, err := parseAddress(v.GetString(key), optional)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return a
	}

	decimals := v.GetUint("market.base_decimals")
	if decimals > 36 {
		errs = append(errs, fmt.Errorf("market.base_decimals: %d is out of range", decimals))
		decimals = 18
	}

	amount, err := ParseUnits(v.GetString("market.flash_loan_amount"), uint8(decimals))
	if err != nil {
		errs = append(errs, fmt.Errorf("market.flash_loan_amount: %w", err))
	}

	cfg := &Config{
		RPC: RPCConfig{
			URL:            v.GetString("rpc.url"),
			RetryAttempts:  v.GetInt("rpc.retry_attempts"),
			RetryDelay:     v.GetDuration("rpc.retry_delay"),
			RequestTimeout: v.GetDuration("rpc.request_timeout"),
		},
		Wallet: WalletConfig{
			PrivateKey: strings.TrimPrefix(v.GetString("wallet.private_key"), "0x"),
		},
		Contract: ContractConfig{
			Address:        addr("contract.address", true),
			GasLimit:       v.GetUint64("contract.gas_limit"),
			ConfirmTimeout: v.GetDuration("contract.confirm_timeout"),
			ExplorerURL:    strings.TrimSuffix(v.GetString("contract.explorer_url"), "/"),
		},
		Market: MarketConfig{
			PoolA: PoolConfig{
				Name:    v.GetString("market.pool_a.name"),
				Address: addr("market.pool_a.address", false),
				Router:  addr("market.pool_a.router", false),
			},
			PoolB: PoolConfig{
				Name:    v.GetString("market.pool_b.name"),
				Address: addr("market.pool_b.address", false),
				Router:  addr("market.pool_b.router", false),
			},
			BaseToken:       addr("market.base_token", false),
			QuoteToken:      addr("market.quote_token", false),
			BaseSymbol:      v.GetString("market.base_symbol"),
			BaseDecimals:    uint8(decimals),
			FlashLoanAmount: amount,
			FeeNumerator:    v.GetUint64("market.fee_numerator"),
			FeeDenominator:  v.GetUint64("market.fee_denominator"),
			MinProfitUSD:    v.GetFloat64("market.min_profit_usd"),
		},
		Listener: ListenerConfig{
			Mode:               strings.ToLower(v.GetString("listener.mode")),
			PollInterval:       v.GetDuration("listener.poll_interval"),
			OverlapPolicy:      strings.ToLower(v.GetString("listener.overlap_policy")),
			StatsInterval:      v.GetDuration("listener.stats_interval"),
			SeenCacheSize:      v.GetInt("listener.seen_cache_size"),
			ResubscribeBackoff: v.GetDuration("listener.resubscribe_backoff"),
		},
		Engine: EngineConfig{
			DryRun: v.GetBool("engine.dry_run"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Addr:    v.GetString("metrics.addr"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks the configuration for values the bot cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.RPC.URL == "" {
		errs = append(errs, errors.New("rpc.url is required"))
	}

	// Signing material is only needed when trades can be submitted
	if !c.Engine.DryRun {
		if c.Wallet.PrivateKey == "" {
			errs = append(errs, errors.New("wallet.private_key is required"))
		} else if _, err := crypto.HexToECDSA(c.Wallet.PrivateKey); err != nil {
			errs = append(errs, fmt.Errorf("wallet.private_key: %w", err))
		}
		if c.Contract.Address == (common.Address{}) {
			errs = append(errs, errors.New("contract.address is required"))
		}
	}
	if c.Contract.GasLimit == 0 {
		errs = append(errs, errors.New("contract.gas_limit must be positive"))
	}

	m := c.Market
	if m.PoolA.Address == m.PoolB.Address {
		errs = append(errs, errors.New("market.pool_a and market.pool_b must differ"))
	}
	if m.BaseToken == m.QuoteToken {
		errs = append(errs, errors.New("market.base_token and market.quote_token must differ"))
	}
	if m.FlashLoanAmount == nil || m.FlashLoanAmount.IsZero() {
		errs = append(errs, errors.New("market.flash_loan_amount must be positive"))
	}
	if m.FeeDenominator == 0 || m.FeeNumerator == 0 || m.FeeNumerator > m.FeeDenominator {
		errs = append(errs, fmt.Errorf("market fee %d/%d is not a fraction in (0, 1]", m.FeeNumerator, m.FeeDenominator))
	}

	switch c.Listener.OverlapPolicy {
	case OverlapCoalesce, OverlapDrop:
	default:
		errs = append(errs, fmt.Errorf("listener.overlap_policy: unknown policy %q", c.Listener.OverlapPolicy))
	}
	switch c.Listener.Mode {
	case ModeAuto, ModeSubscribe, ModePoll:
	default:
		errs = append(errs, fmt.Errorf("listener.mode: unknown mode %q", c.Listener.Mode))
	}
	if c.Listener.PollInterval <= 0 {
		errs = append(errs, errors.New("listener.poll_interval must be positive"))
	}

	return errors.Join(errs...)
}

func parseAddress(s string, optional bool) (common.Address, error) {
	if s == "" && optional {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseUnits converts a decimal token amount such as "1.5" into its smallest
// unit representation with the given number of decimals.
func ParseUnits(amount string, decimals uint8) (*uint256.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative amount %q", amount)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}

	u, overflow := uint256.FromBig(r.Num())
	if overflow {
		return nil, fmt.Errorf("amount %q exceeds 256 bits", amount)
	}
	return u, nil
}
