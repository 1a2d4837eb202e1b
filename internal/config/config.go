// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// TierConfig is one take-profit rule: sell sell_percent of the entry
// quantity once the price multiple reaches multiplier.
type TierConfig struct {
	Multiplier  float64 `mapstructure:"multiplier"`
	SellPercent float64 `mapstructure:"sell_percent"`
}

// PoolConfig maps a token mint to its Raydium AMM pool accounts.
type PoolConfig struct {
	Mint             string `mapstructure:"mint"`
	AmmID            string `mapstructure:"amm_id"`
	AmmAuthority     string `mapstructure:"amm_authority"`
	AmmOpenOrders    string `mapstructure:"amm_open_orders"`
	AmmTargetOrders  string `mapstructure:"amm_target_orders"`
	PoolCoinVault    string `mapstructure:"pool_coin_vault"`
	PoolPcVault      string `mapstructure:"pool_pc_vault"`
	SerumProgram     string `mapstructure:"serum_program"`
	SerumMarket      string `mapstructure:"serum_market"`
	SerumBids        string `mapstructure:"serum_bids"`
	SerumAsks        string `mapstructure:"serum_asks"`
	SerumEventQueue  string `mapstructure:"serum_event_queue"`
	SerumCoinVault   string `mapstructure:"serum_coin_vault"`
	SerumPcVault     string `mapstructure:"serum_pc_vault"`
	SerumVaultSigner string `mapstructure:"serum_vault_signer"`
}

type Config struct {
	WebSocketURL   string `mapstructure:"websocket_url"`
	RPCURL         string `mapstructure:"rpc_url"`
	BlockEngineURL string `mapstructure:"block_engine_url"`

	MonitoredWallet string `mapstructure:"monitored_wallet"`
	PrivateKey      string `mapstructure:"private_key"`

	BuyAmountLamports    uint64       `mapstructure:"buy_amount_lamports"`
	MaxBuyAmountLamports uint64       `mapstructure:"max_buy_amount_lamports"`
	SlippageBps          uint16       `mapstructure:"slippage_bps"`
	Tiers                []TierConfig `mapstructure:"tiers"`
	EmergencyMirror      bool         `mapstructure:"emergency_mirror"`

	TipNormalLamports    uint64 `mapstructure:"tip_normal_lamports"`
	TipEmergencyLamports uint64 `mapstructure:"tip_emergency_lamports"`
	TipMaxLamports       uint64 `mapstructure:"tip_max_lamports"`

	SubmitTimeoutMs  int     `mapstructure:"submit_timeout_ms"`
	SubmitRPS        float64 `mapstructure:"submit_rps"`
	Workers          int     `mapstructure:"workers"`
	ComputeUnitLimit uint32  `mapstructure:"compute_unit_limit"`
	ComputeUnitPrice uint64  `mapstructure:"compute_unit_price"`

	Pools []PoolConfig `mapstructure:"pools"`

	DebugLogging bool   `mapstructure:"debug_logging"`
	LogFile      string `mapstructure:"log_file"`
	JournalFile  string `mapstructure:"journal_file"`
}

const (
	DefaultBuyAmountLamports    = 100_000_000 // 0.1 SOL
	DefaultMaxBuyAmountLamports = 500_000_000 // 0.5 SOL
	DefaultSlippageBps          = 500
	DefaultTipNormalLamports    = 10_000
	DefaultTipEmergencyLamports = 100_000
	DefaultTipMaxLamports       = 500_000
	DefaultSubmitTimeoutMs      = 3000
	DefaultSubmitRPS            = 5.0
	DefaultWorkers              = 4
	DefaultComputeUnitLimit     = 200_000
	DefaultComputeUnitPrice     = 1_000 // micro-lamports per CU
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"buy_amount_lamports":     DefaultBuyAmountLamports,
		"max_buy_amount_lamports": DefaultMaxBuyAmountLamports,
		"slippage_bps":            DefaultSlippageBps,
		"emergency_mirror":        true,
		"tip_normal_lamports":     DefaultTipNormalLamports,
		"tip_emergency_lamports":  DefaultTipEmergencyLamports,
		"tip_max_lamports":        DefaultTipMaxLamports,
		"submit_timeout_ms":       DefaultSubmitTimeoutMs,
		"submit_rps":              DefaultSubmitRPS,
		"workers":                 DefaultWorkers,
		"compute_unit_limit":      DefaultComputeUnitLimit,
		"compute_unit_price":      DefaultComputeUnitPrice,
		"log_file":                "logs/copybot.log",
		"journal_file":            "logs/trades.csv",
		"tiers": []map[string]interface{}{
			{"multiplier": 2.0, "sell_percent": 20.0},
			{"multiplier": 3.0, "sell_percent": 30.0},
			{"multiplier": 5.0, "sell_percent": 50.0},
		},
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if cfg.MonitoredWallet == "" {
		return errors.New("missing monitored_wallet in configuration")
	}
	if cfg.PrivateKey == "" {
		return errors.New("missing private key: set private_key or COPYBOT_PRIVATE_KEY")
	}
	if cfg.WebSocketURL == "" {
		return errors.New("missing websocket_url in configuration")
	}
	if err := validateURLWithCache(cfg.WebSocketURL, "ws"); err != nil {
		return errors.New("invalid WebSocket URL protocol")
	}
	if cfg.RPCURL == "" {
		return errors.New("missing rpc_url in configuration")
	}
	if err := validateURLWithCache(cfg.RPCURL, "http"); err != nil {
		return errors.New("invalid RPC URL protocol")
	}
	if cfg.BlockEngineURL == "" {
		return errors.New("missing block_engine_url in configuration")
	}
	if err := validateURLWithCache(cfg.BlockEngineURL, "http"); err != nil {
		return errors.New("invalid block engine URL protocol")
	}
	return validateNumericParams(cfg)
}

func validateNumericParams(cfg *Config) error {
	if cfg.BuyAmountLamports == 0 {
		return errors.New("invalid buy_amount_lamports")
	}
	if cfg.MaxBuyAmountLamports < cfg.BuyAmountLamports {
		return errors.New("max_buy_amount_lamports below buy_amount_lamports")
	}
	if cfg.SlippageBps == 0 || cfg.SlippageBps >= 10_000 {
		return errors.New("slippage_bps must be between 1 and 9999")
	}
	if cfg.TipMaxLamports < cfg.TipEmergencyLamports || cfg.TipEmergencyLamports < cfg.TipNormalLamports {
		return errors.New("tip levels must satisfy normal <= emergency <= max")
	}
	if cfg.SubmitTimeoutMs <= 0 {
		return errors.New("invalid submit_timeout_ms")
	}
	if cfg.Workers <= 0 {
		return errors.New("invalid workers count")
	}
	return validateTiers(cfg.Tiers)
}

// validateTiers requires strictly ascending multipliers above 1x; the tier
// loop relies on the ordering to stop early.
func validateTiers(tiers []TierConfig) error {
	prev := 1.0
	for i, t := range tiers {
		if t.Multiplier <= prev {
			return fmt.Errorf("tier %d: multiplier %.2f must exceed %.2f", i, t.Multiplier, prev)
		}
		if t.SellPercent <= 0 || t.SellPercent > 100 {
			return fmt.Errorf("tier %d: sell_percent %.2f out of range (0, 100]", i, t.SellPercent)
		}
		prev = t.Multiplier
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables lets secrets and endpoints come from the
// environment, overriding the file. The private key in particular should
// never live in the config file.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("COPYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if pk := v.GetString("PRIVATE_KEY"); pk != "" {
		cfg.PrivateKey = pk
	}
	if ws := v.GetString("WEBSOCKET_URL"); ws != "" {
		cfg.WebSocketURL = ws
	}
	if rpc := v.GetString("RPC_URL"); rpc != "" {
		cfg.RPCURL = rpc
	}
	if be := v.GetString("BLOCK_ENGINE_URL"); be != "" {
		cfg.BlockEngineURL = be
	}
	if w := v.GetString("MONITORED_WALLET"); w != "" {
		cfg.MonitoredWallet = w
	}
}
