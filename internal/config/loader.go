package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYCOPY_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POLYCOPY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.ProxyAddress, "POLYCOPY_WALLET_PROXY_ADDRESS")
	setStr(&cfg.Wallet.PrivateKey, "POLYCOPY_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYCOPY_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYCOPY_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYCOPY_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYCOPY_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYCOPY_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYCOPY_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYCOPY_POLYMARKET_SIGNATURE_TYPE")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "POLYCOPY_CHAIN_RPC_URL")
	setStr(&cfg.Chain.USDCContract, "POLYCOPY_CHAIN_USDC_CONTRACT")

	// ── Database ──
	setStr(&cfg.Database.DSN, "POLYCOPY_DATABASE_DSN")
	setStr(&cfg.Database.Host, "POLYCOPY_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POLYCOPY_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POLYCOPY_DATABASE_NAME")
	setStr(&cfg.Database.User, "POLYCOPY_DATABASE_USER")
	setStr(&cfg.Database.Password, "POLYCOPY_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POLYCOPY_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POLYCOPY_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POLYCOPY_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POLYCOPY_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYCOPY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYCOPY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYCOPY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYCOPY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYCOPY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYCOPY_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.CacheTTLSeconds, "POLYCOPY_REDIS_CACHE_TTL_SECONDS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYCOPY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYCOPY_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYCOPY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYCOPY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYCOPY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYCOPY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYCOPY_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEnabled, "POLYCOPY_S3_ARCHIVE_ENABLED")
	setInt(&cfg.S3.ArchiveRetentionDays, "POLYCOPY_S3_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.S3.ArchiveCron, "POLYCOPY_S3_ARCHIVE_CRON")

	// ── Copy ──
	setStringSlice(&cfg.Copy.TraderAddresses, "POLYCOPY_TRADER_ADDRESSES")
	setInt(&cfg.Copy.FetchIntervalMs, "POLYCOPY_FETCH_INTERVAL_MS")
	setInt(&cfg.Copy.PollIntervalMs, "POLYCOPY_POLL_INTERVAL_MS")
	setInt(&cfg.Copy.TooOldHours, "POLYCOPY_TOO_OLD_HOURS")
	setBool(&cfg.Copy.LiveFeed, "POLYCOPY_LIVE_FEED")
	setBool(&cfg.Copy.Aggregation.Enabled, "POLYCOPY_AGGREGATION_ENABLED")
	setInt(&cfg.Copy.Aggregation.WindowSeconds, "POLYCOPY_AGGREGATION_WINDOW_SECONDS")
	setFloat64(&cfg.Copy.Aggregation.MinTotalUsd, "POLYCOPY_AGGREGATION_MIN_TOTAL_USD")

	// ── Strategy ──
	setStr(&cfg.Strategy.Mode, "POLYCOPY_STRATEGY_MODE")
	setFloat64(&cfg.Strategy.CopySize, "POLYCOPY_STRATEGY_COPY_SIZE")
	setFloat64(&cfg.Strategy.MinOrderSizeUsd, "POLYCOPY_STRATEGY_MIN_ORDER_SIZE_USD")
	setFloat64(&cfg.Strategy.MaxOrderSizeUsd, "POLYCOPY_STRATEGY_MAX_ORDER_SIZE_USD")
	setFloat64(&cfg.Strategy.MaxPositionSizeUsd, "POLYCOPY_STRATEGY_MAX_POSITION_SIZE_USD")
	setStr(&cfg.Strategy.TieredMultipliers, "POLYCOPY_STRATEGY_TIERED_MULTIPLIERS")
	setFloat64(&cfg.Strategy.MaxPriceSlippage, "POLYCOPY_STRATEGY_MAX_PRICE_SLIPPAGE")
	setInt(&cfg.Strategy.RetryLimit, "POLYCOPY_STRATEGY_RETRY_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYCOPY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "POLYCOPY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYCOPY_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "POLYCOPY_NOTIFY_EVENTS")

	// ── Top level ──
	setStr(&cfg.Mode, "POLYCOPY_MODE")
	setStr(&cfg.LogLevel, "POLYCOPY_LOG_LEVEL")
}

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
