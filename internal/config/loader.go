package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AINEX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AINEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "AINEX_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.Address, "AINEX_WALLET_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AINEX_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "AINEX_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "AINEX_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "AINEX_CHAIN_ID")
	setStr(&cfg.Chain.AggregatorContract, "AINEX_CHAIN_AGGREGATOR_CONTRACT")
	setDuration(&cfg.Chain.ConfirmTimeout, "AINEX_CHAIN_CONFIRM_TIMEOUT")
	setInt(&cfg.Chain.RetryAttempts, "AINEX_CHAIN_RETRY_ATTEMPTS")

	// ── Feed ──
	setStr(&cfg.Feed.WSHost, "AINEX_FEED_WS_HOST")
	setDuration(&cfg.Feed.ReconnectBackoff, "AINEX_FEED_RECONNECT_BACKOFF")
	setDuration(&cfg.Feed.MaxBackoff, "AINEX_FEED_MAX_BACKOFF")
	setDuration(&cfg.Feed.StaleAfter, "AINEX_FEED_STALE_AFTER")

	// ── Scanner ──
	setFloat64(&cfg.Scanner.SpreadThresholdBps, "AINEX_SCANNER_SPREAD_THRESHOLD_BPS")
	setFloat64(&cfg.Scanner.FeeGasFloorBps, "AINEX_SCANNER_FEE_GAS_FLOOR_BPS")
	setInt(&cfg.Scanner.QueueSize, "AINEX_SCANNER_QUEUE_SIZE")
	setDuration(&cfg.Scanner.OpportunityTTL, "AINEX_SCANNER_OPPORTUNITY_TTL")
	setFloat64(&cfg.Scanner.MinLiquidity, "AINEX_SCANNER_MIN_LIQUIDITY")

	// ── Risk ──
	setFloat64(&cfg.Risk.DailyLossCap, "AINEX_RISK_DAILY_LOSS_CAP")
	setFloat64(&cfg.Risk.MaxPositionSize, "AINEX_RISK_MAX_POSITION_SIZE")
	setFloat64(&cfg.Risk.MaxOpenPositions, "AINEX_RISK_MAX_OPEN_POSITIONS")
	setFloat64(&cfg.Risk.PoolConcentration, "AINEX_RISK_POOL_CONCENTRATION")
	setFloat64(&cfg.Risk.MinNetProfit, "AINEX_RISK_MIN_NET_PROFIT")
	setInt(&cfg.Risk.ConsecutiveFailures, "AINEX_RISK_CONSECUTIVE_FAILURES")
	setFloat64(&cfg.Risk.GasCeilingGwei, "AINEX_RISK_GAS_CEILING_GWEI")
	setFloat64(&cfg.Risk.SlippageCeilingBps, "AINEX_RISK_SLIPPAGE_CEILING_BPS")

	// ── Strategy ──
	setStringSlice(&cfg.Strategy.Active, "AINEX_STRATEGY_ACTIVE")
	setInt(&cfg.Strategy.Workers, "AINEX_STRATEGY_WORKERS")
	setDuration(&cfg.Strategy.PlanTTL, "AINEX_STRATEGY_PLAN_TTL")
	setBool(&cfg.Strategy.CrossPool.Enabled, "AINEX_STRATEGY_CROSS_POOL_ENABLED")
	setBool(&cfg.Strategy.Sweep.Enabled, "AINEX_STRATEGY_SWEEP_ENABLED")
	setBool(&cfg.Strategy.Bridged.Enabled, "AINEX_STRATEGY_BRIDGED_ENABLED")
	setBool(&cfg.Strategy.Liquidation.Enabled, "AINEX_STRATEGY_LIQUIDATION_ENABLED")

	// ── Providers ──
	setBool(&cfg.Providers.Aave.Enabled, "AINEX_PROVIDERS_AAVE_ENABLED")
	setStr(&cfg.Providers.Aave.Contract, "AINEX_PROVIDERS_AAVE_CONTRACT")
	setBool(&cfg.Providers.Balancer.Enabled, "AINEX_PROVIDERS_BALANCER_ENABLED")
	setStr(&cfg.Providers.Balancer.Contract, "AINEX_PROVIDERS_BALANCER_CONTRACT")
	setBool(&cfg.Providers.Dydx.Enabled, "AINEX_PROVIDERS_DYDX_ENABLED")
	setStr(&cfg.Providers.Dydx.Contract, "AINEX_PROVIDERS_DYDX_CONTRACT")

	// ── Executor ──
	setInt(&cfg.Executor.MaxInflight, "AINEX_EXECUTOR_MAX_INFLIGHT")
	setInt(&cfg.Executor.QueueSize, "AINEX_EXECUTOR_QUEUE_SIZE")
	setInt(&cfg.Executor.SubmitRetries, "AINEX_EXECUTOR_SUBMIT_RETRIES")
	setDuration(&cfg.Executor.RetryBackoff, "AINEX_EXECUTOR_RETRY_BACKOFF")

	// ── Optimizer ──
	setBool(&cfg.Optimizer.Enabled, "AINEX_OPTIMIZER_ENABLED")
	setDuration(&cfg.Optimizer.Interval, "AINEX_OPTIMIZER_INTERVAL")
	setInt(&cfg.Optimizer.HistoryWindow, "AINEX_OPTIMIZER_HISTORY_WINDOW")

	// ── Verifier ──
	setBool(&cfg.Verifier.Enabled, "AINEX_VERIFIER_ENABLED")
	setStr(&cfg.Verifier.EtherscanURL, "AINEX_VERIFIER_ETHERSCAN_URL")
	setStr(&cfg.Verifier.APIKey, "AINEX_VERIFIER_API_KEY")
	setDuration(&cfg.Verifier.ReconcileAge, "AINEX_VERIFIER_RECONCILE_AGE")
	setDuration(&cfg.Verifier.ReconcileTick, "AINEX_VERIFIER_RECONCILE_TICK")

	// ── Database ──
	setStr(&cfg.Database.DSN, "AINEX_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "AINEX_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "AINEX_DATABASE_HOST")
	setInt(&cfg.Database.Port, "AINEX_DATABASE_PORT")
	setStr(&cfg.Database.Database, "AINEX_DATABASE_NAME")
	setStr(&cfg.Database.User, "AINEX_DATABASE_USER")
	setStr(&cfg.Database.Password, "AINEX_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "AINEX_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "AINEX_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "AINEX_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "AINEX_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "AINEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AINEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AINEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AINEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AINEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AINEX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "AINEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AINEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "AINEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "AINEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "AINEX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AINEX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AINEX_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.ArchiveRetentionDays, "AINEX_S3_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.S3.ArchiveCron, "AINEX_S3_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "AINEX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "AINEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AINEX_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "AINEX_SERVER_API_KEY")
	setStr(&cfg.Server.OperatorKey, "AINEX_SERVER_OPERATOR_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "AINEX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AINEX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "AINEX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "AINEX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "AINEX_MODE")
	setStr(&cfg.LogLevel, "AINEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
