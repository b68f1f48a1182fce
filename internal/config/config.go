// Package config defines the top-level configuration for the ainex pipeline
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AINEX_* environment variables.
type Config struct {
	Wallet    WalletConfig    `toml:"wallet"`
	Chain     ChainConfig     `toml:"chain"`
	Feed      FeedConfig      `toml:"feed"`
	Pools     []PoolConfig    `toml:"pools"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Risk      RiskConfig      `toml:"risk"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Providers ProvidersConfig `toml:"providers"`
	Venues    VenuesConfig    `toml:"venues"`
	Executor  ExecutorConfig  `toml:"executor"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Verifier  VerifierConfig  `toml:"verifier"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// WalletConfig holds the signing identity used for submission.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	Address          string `toml:"address"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds Ethereum RPC endpoints and submission parameters.
type ChainConfig struct {
	RPCURL             string   `toml:"rpc_url"`
	ChainID            int64    `toml:"chain_id"`
	AggregatorContract string   `toml:"aggregator_contract"`
	ConfirmTimeout     duration `toml:"confirm_timeout"`
	ConfirmPoll        duration `toml:"confirm_poll"`
	GasCacheTTL        duration `toml:"gas_cache_ttl"`
	RetryAttempts      int      `toml:"retry_attempts"`
	RetryDelay         duration `toml:"retry_delay"`
}

// FeedConfig holds market data stream parameters.
type FeedConfig struct {
	WSHost           string   `toml:"ws_host"`
	ReconnectBackoff duration `toml:"reconnect_backoff"`
	MaxBackoff       duration `toml:"max_backoff"`
	StaleAfter       duration `toml:"stale_after"`
}

// PoolConfig declares one tracked liquidity pool.
type PoolConfig struct {
	ID      string  `toml:"id"`
	Venue   string  `toml:"venue"`
	Base    string  `toml:"base"`
	Quote   string  `toml:"quote"`
	Address string  `toml:"address"`
	FeeBps  float64 `toml:"fee_bps"`
}

// ScannerConfig holds opportunity detection parameters.
type ScannerConfig struct {
	SpreadThresholdBps float64  `toml:"spread_threshold_bps"`
	FeeGasFloorBps     float64  `toml:"fee_gas_floor_bps"`
	QueueSize          int      `toml:"queue_size"`
	OpportunityTTL     duration `toml:"opportunity_ttl"`
	VolatilityWindow   duration `toml:"volatility_window"`
	MinLiquidity       float64  `toml:"min_liquidity"`
	ConfidenceFloor    float64  `toml:"confidence_floor"`
}

// RiskConfig holds the hard limits enforced by the risk gate.
type RiskConfig struct {
	DailyLossCap        float64 `toml:"daily_loss_cap"`       // ETH
	MaxPositionSize     float64 `toml:"max_position_size"`    // ETH per plan
	MaxOpenPositions    float64 `toml:"max_open_positions"`   // ETH total reserved
	PoolConcentration   float64 `toml:"pool_concentration"`   // fraction of open total per pool
	MinNetProfit        float64 `toml:"min_net_profit"`       // ETH per trade
	ConsecutiveFailures int     `toml:"consecutive_failures"` // breaker trip threshold
	GasCeilingGwei      float64 `toml:"gas_ceiling_gwei"`     // breaker trip threshold
	SlippageCeilingBps  float64 `toml:"slippage_ceiling_bps"`
}

// StrategyConfig selects and tunes the strategy set.
type StrategyConfig struct {
	Active  []string `toml:"active"`
	Workers int      `toml:"workers"`
	PlanTTL duration `toml:"plan_ttl"`

	CrossPool   CrossPoolConfig   `toml:"cross_pool"`
	Sweep       SweepConfig       `toml:"sweep"`
	Bridged     BridgedConfig     `toml:"bridged"`
	Liquidation LiquidationConfig `toml:"liquidation"`
}

// CrossPoolConfig holds config for the cross_pool strategy.
type CrossPoolConfig struct {
	Enabled       bool    `toml:"enabled"`
	MinSpreadBps  float64 `toml:"min_spread_bps"`
	MaxTradeSize  float64 `toml:"max_trade_size"`
	LiquidityFrac float64 `toml:"liquidity_frac"` // loan size as a fraction of pool depth
}

// SweepConfig holds config for the liquidity_sweep strategy.
type SweepConfig struct {
	Enabled      bool    `toml:"enabled"`
	MinSpreadBps float64 `toml:"min_spread_bps"`
	MaxHops      int     `toml:"max_hops"`
	SizePerHop   float64 `toml:"size_per_hop"`
}

// BridgedConfig holds config for the bridged_asset strategy.
type BridgedConfig struct {
	Enabled       bool     `toml:"enabled"`
	MinSpreadBps  float64  `toml:"min_spread_bps"`
	BridgeFeeBps  float64  `toml:"bridge_fee_bps"`
	WrappedAssets []string `toml:"wrapped_assets"`
}

// LiquidationConfig holds config for the liquidation_capture strategy.
type LiquidationConfig struct {
	Enabled        bool    `toml:"enabled"`
	MinBonusBps    float64 `toml:"min_bonus_bps"`
	MaxDebtSize    float64 `toml:"max_debt_size"`
	HealthCritical float64 `toml:"health_critical"`
}

// ProviderConfig holds one lending protocol's parameters.
type ProviderConfig struct {
	Enabled   bool     `toml:"enabled"`
	Contract  string   `toml:"contract"`
	FeeBps    float64  `toml:"fee_bps"`
	QuoteTTL  duration `toml:"quote_ttl"`
	GasBorrow uint64   `toml:"gas_borrow"` // borrow step estimate
	GasRepay  uint64   `toml:"gas_repay"`  // repay step estimate
}

// ProvidersConfig enumerates the flash-loan providers.
type ProvidersConfig struct {
	Aave     ProviderConfig `toml:"aave"`
	Balancer ProviderConfig `toml:"balancer"`
	Dydx     ProviderConfig `toml:"dydx"`
}

// VenueClientConfig holds one DEX quoting client's parameters.
type VenueClientConfig struct {
	Enabled  bool   `toml:"enabled"`
	Router   string `toml:"router"`
	Quoter   string `toml:"quoter"`
	GraphURL string `toml:"graph_url"`
}

// VenuesConfig enumerates the swap venues.
type VenuesConfig struct {
	Uniswap   VenueClientConfig `toml:"uniswap"`
	Sushiswap VenueClientConfig `toml:"sushiswap"`
}

// ExecutorConfig holds submission parameters.
type ExecutorConfig struct {
	MaxInflight   int      `toml:"max_inflight"`
	QueueSize     int      `toml:"queue_size"`
	SubmitRetries int      `toml:"submit_retries"`
	RetryBackoff  duration `toml:"retry_backoff"`
	MaxRetryDelay duration `toml:"max_retry_delay"`
	DedupTTL      duration `toml:"dedup_ttl"`
}

// OptimizerConfig holds the parameter tuning loop settings.
type OptimizerConfig struct {
	Enabled        bool     `toml:"enabled"`
	Interval       duration `toml:"interval"`
	MinSpreadBps   float64  `toml:"min_spread_bps"`
	MaxSpreadBps   float64  `toml:"max_spread_bps"`
	MinSlippageBps float64  `toml:"min_slippage_bps"`
	MaxSlippageBps float64  `toml:"max_slippage_bps"`
	HistoryWindow  int      `toml:"history_window"` // settled records considered per cycle
}

// VerifierConfig holds the secondary confirmation source.
type VerifierConfig struct {
	Enabled       bool     `toml:"enabled"`
	EtherscanURL  string   `toml:"etherscan_url"`
	APIKey        string   `toml:"api_key"`
	ReconcileAge  duration `toml:"reconcile_age"` // unknown records older than this get checked
	ReconcileTick duration `toml:"reconcile_tick"`
	GiveUpAfter   duration `toml:"give_up_after"` // NotFound past this age finalizes as reverted
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`      // read endpoints; empty disables auth
	OperatorKey string   `toml:"operator_key"` // breaker reset / halt endpoints
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "http://localhost:8545",
			ChainID:        1,
			ConfirmTimeout: duration{90 * time.Second},
			ConfirmPoll:    duration{2 * time.Second},
			GasCacheTTL:    duration{12 * time.Second},
			RetryAttempts:  3,
			RetryDelay:     duration{500 * time.Millisecond},
		},
		Feed: FeedConfig{
			ReconnectBackoff: duration{time.Second},
			MaxBackoff:       duration{30 * time.Second},
			StaleAfter:       duration{5 * time.Second},
		},
		Pools: []PoolConfig{
			{ID: "uniswap_v3:WETH/USDC", Venue: "uniswap_v3", Base: "WETH", Quote: "USDC", Address: "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640", FeeBps: 5},
			{ID: "sushiswap:WETH/USDC", Venue: "sushiswap", Base: "WETH", Quote: "USDC", Address: "0x397FF1542f962076d0BFE58eA045FfA2d347ACa0", FeeBps: 30},
			{ID: "uniswap_v3:WBTC/WETH", Venue: "uniswap_v3", Base: "WBTC", Quote: "WETH", Address: "0xCBCdF9626bC03E24f779434178A73a0B4bad62eD", FeeBps: 30},
			{ID: "sushiswap:WBTC/WETH", Venue: "sushiswap", Base: "WBTC", Quote: "WETH", Address: "0xCEfF51756c56CeFFCA006cD410B03FFC46dd3a58", FeeBps: 30},
			{ID: "uniswap_v3:DAI/USDC", Venue: "uniswap_v3", Base: "DAI", Quote: "USDC", Address: "0x5777d92f208679DB4b9778590Fa3CAB3aC9e2168", FeeBps: 1},
			{ID: "sushiswap:DAI/USDC", Venue: "sushiswap", Base: "DAI", Quote: "USDC", Address: "0xAaF5110db6e744ff70fB339DE037B990A20bdace", FeeBps: 30},
		},
		Scanner: ScannerConfig{
			SpreadThresholdBps: 10,
			FeeGasFloorBps:     4,
			QueueSize:          256,
			OpportunityTTL:     duration{30 * time.Second},
			VolatilityWindow:   duration{5 * time.Minute},
			MinLiquidity:       100_000,
			ConfidenceFloor:    0.25,
		},
		Risk: RiskConfig{
			DailyLossCap:        100.0,
			MaxPositionSize:     1000.0,
			MaxOpenPositions:    3000.0,
			PoolConcentration:   0.20,
			MinNetProfit:        0.1,
			ConsecutiveFailures: 5,
			GasCeilingGwei:      300,
			SlippageCeilingBps:  10,
		},
		Strategy: StrategyConfig{
			Active:  []string{"cross_pool", "liquidity_sweep"},
			Workers: 4,
			PlanTTL: duration{20 * time.Second},
			CrossPool: CrossPoolConfig{
				Enabled:       true,
				MinSpreadBps:  10,
				MaxTradeSize:  1000.0,
				LiquidityFrac: 0.10,
			},
			Sweep: SweepConfig{
				Enabled:      true,
				MinSpreadBps: 15,
				MaxHops:      3,
				SizePerHop:   250.0,
			},
			Bridged: BridgedConfig{
				Enabled:       false,
				MinSpreadBps:  20,
				BridgeFeeBps:  4,
				WrappedAssets: []string{"WETH", "WBTC"},
			},
			Liquidation: LiquidationConfig{
				Enabled:        false,
				MinBonusBps:    500,
				MaxDebtSize:    500.0,
				HealthCritical: 1.0,
			},
		},
		Providers: ProvidersConfig{
			Aave: ProviderConfig{
				Enabled:   true,
				Contract:  "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E0",
				FeeBps:    9,
				QuoteTTL:  duration{5 * time.Second},
				GasBorrow: 160_000,
				GasRepay:  90_000,
			},
			Balancer: ProviderConfig{
				Enabled:   true,
				Contract:  "0xBA12222222228d8Ba445958a75a0704d566BF2C8",
				FeeBps:    0,
				QuoteTTL:  duration{5 * time.Second},
				GasBorrow: 140_000,
				GasRepay:  80_000,
			},
			Dydx: ProviderConfig{
				Enabled:   false,
				Contract:  "0x1E0447b19BB6EcFdAe1e4AE1694b0C3659614e4e",
				FeeBps:    0,
				QuoteTTL:  duration{5 * time.Second},
				GasBorrow: 200_000,
				GasRepay:  100_000,
			},
		},
		Venues: VenuesConfig{
			Uniswap: VenueClientConfig{
				Enabled: true,
				Router:  "0xE592427A0AEce92De3Edee1F18E0157C05861564",
				Quoter:  "0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6",
			},
			Sushiswap: VenueClientConfig{
				Enabled: true,
				Router:  "0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F",
			},
		},
		Executor: ExecutorConfig{
			MaxInflight:   6,
			QueueSize:     64,
			SubmitRetries: 3,
			RetryBackoff:  duration{200 * time.Millisecond},
			MaxRetryDelay: duration{5 * time.Second},
			DedupTTL:      duration{10 * time.Minute},
		},
		Optimizer: OptimizerConfig{
			Enabled:        true,
			Interval:       duration{15 * time.Minute},
			MinSpreadBps:   5,
			MaxSpreadBps:   50,
			MinSlippageBps: 1,
			MaxSlippageBps: 100,
			HistoryWindow:  100,
		},
		Verifier: VerifierConfig{
			Enabled:       true,
			EtherscanURL:  "https://api.etherscan.io/api",
			ReconcileAge:  duration{2 * time.Minute},
			ReconcileTick: duration{30 * time.Second},
			GiveUpAfter:   duration{30 * time.Minute},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ainex",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "ainex-ledger",
			UseSSL:               false,
			ForcePathStyle:       true,
			ArchiveRetentionDays: 90,
			ArchiveCron:          "0 3 1 * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"breaker_tripped", "breaker_reset", "settlement_loss", "fatal"},
		},
		Mode:     "pipeline",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"pipeline": true,
	"scan":     true,
	"monitor":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validVenues enumerates the venues pools may reference.
var validVenues = map[string]bool{
	"uniswap_v3": true,
	"uniswap_v2": true,
	"sushiswap":  true,
	"curve":      true,
	"balancer":   true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: pipeline, scan, monitor)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// A signing identity is required when we submit transactions.
	if c.Mode == "pipeline" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Chain.AggregatorContract == "" {
			errs = append(errs, "chain: aggregator_contract must be set for mode "+c.Mode)
		}
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if c.Chain.ConfirmTimeout.Duration <= 0 {
		errs = append(errs, "chain: confirm_timeout must be > 0")
	}

	// Feed
	if c.Mode != "monitor" && c.Feed.WSHost == "" {
		errs = append(errs, "feed: ws_host must not be empty for mode "+c.Mode)
	}

	// Pools
	if c.Mode != "monitor" && len(c.Pools) == 0 {
		errs = append(errs, "pools: at least one pool must be configured")
	}
	for i, p := range c.Pools {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("pools[%d]: id must not be empty", i))
		}
		if !validVenues[p.Venue] {
			errs = append(errs, fmt.Sprintf("pools[%d]: unknown venue %q", i, p.Venue))
		}
		if p.Base == "" || p.Quote == "" {
			errs = append(errs, fmt.Sprintf("pools[%d]: base and quote must not be empty", i))
		}
	}

	// Scanner
	if c.Scanner.SpreadThresholdBps <= 0 {
		errs = append(errs, "scanner: spread_threshold_bps must be > 0")
	}
	if c.Scanner.QueueSize < 1 {
		errs = append(errs, "scanner: queue_size must be >= 1")
	}
	if c.Scanner.OpportunityTTL.Duration <= 0 {
		errs = append(errs, "scanner: opportunity_ttl must be > 0")
	}

	// Risk
	if c.Risk.DailyLossCap <= 0 {
		errs = append(errs, "risk: daily_loss_cap must be > 0")
	}
	if c.Risk.MaxPositionSize <= 0 {
		errs = append(errs, "risk: max_position_size must be > 0")
	}
	if c.Risk.PoolConcentration <= 0 || c.Risk.PoolConcentration > 1 {
		errs = append(errs, fmt.Sprintf("risk: pool_concentration must be in (0,1], got %v", c.Risk.PoolConcentration))
	}
	if c.Risk.ConsecutiveFailures < 1 {
		errs = append(errs, "risk: consecutive_failures must be >= 1")
	}

	// Strategy
	if c.Mode != "monitor" && len(c.Strategy.Active) == 0 {
		errs = append(errs, "strategy: active must name at least one strategy")
	}
	if c.Strategy.Workers < 1 {
		errs = append(errs, "strategy: workers must be >= 1")
	}
	if c.Strategy.PlanTTL.Duration <= 0 {
		errs = append(errs, "strategy: plan_ttl must be > 0")
	}

	// Executor
	if c.Executor.MaxInflight < 1 {
		errs = append(errs, "executor: max_inflight must be >= 1")
	}
	if c.Executor.QueueSize < 1 {
		errs = append(errs, "executor: queue_size must be >= 1")
	}

	// Optimizer
	if c.Optimizer.Enabled {
		if c.Optimizer.Interval.Duration <= 0 {
			errs = append(errs, "optimizer: interval must be > 0 when enabled")
		}
		if c.Optimizer.MinSpreadBps > c.Optimizer.MaxSpreadBps {
			errs = append(errs, "optimizer: min_spread_bps must not exceed max_spread_bps")
		}
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
