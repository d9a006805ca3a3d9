// Package config defines the top-level configuration for the copy-trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYCOPY_* environment variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Chain      ChainConfig      `toml:"chain"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Copy       CopyConfig       `toml:"copy"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WalletConfig holds the operator's wallet credentials. ProxyAddress is the
// Polymarket proxy wallet that holds positions and USDC.
type WalletConfig struct {
	ProxyAddress     string `toml:"proxy_address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	DataHost      string `toml:"data_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// ChainConfig holds the Polygon RPC endpoint and the USDC contract used to
// read the operator's quote balance.
type ChainConfig struct {
	RPCURL       string `toml:"rpc_url"`
	USDCContract string `toml:"usdc_contract"`
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

	// CacheTTLSeconds bounds how stale a cached balance/position snapshot
	// may be before the settlement path refetches it.
	CacheTTLSeconds int `toml:"cache_ttl_seconds"`
}

// S3Config holds S3-compatible object storage parameters for the activity
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	ArchiveEnabled       bool   `toml:"archive_enabled"`
	ArchiveRetentionDays int    `toml:"archive_retention_days"`
	ArchiveCron          string `toml:"archive_cron"`
}

// CopyConfig holds the copy-trading parameters: whom to follow and how the
// ingest/execute loops are scheduled.
type CopyConfig struct {
	TraderAddresses []string `toml:"trader_addresses"`
	FetchIntervalMs int      `toml:"fetch_interval_ms"` // ingestor poll period
	PollIntervalMs  int      `toml:"poll_interval_ms"`  // executor poll period
	TooOldHours     int      `toml:"too_old_hours"`     // ignore activities older than this
	LiveFeed        bool     `toml:"live_feed"`         // subscribe to the activity websocket

	Aggregation AggregationConfig `toml:"aggregation"`
}

// AggregationConfig controls batching of small BUY trades.
type AggregationConfig struct {
	Enabled       bool    `toml:"enabled"`
	WindowSeconds int     `toml:"window_seconds"`
	MinTotalUsd   float64 `toml:"min_total_usd"`
}

// StrategyConfig holds the sizing strategy parameters. Mode is one of
// PERCENTAGE, FIXED, ADAPTIVE; CopySize is a factor for PERCENTAGE/ADAPTIVE
// and a dollar amount for FIXED. TieredMultipliers uses the
// "min-max:multiplier" list format, e.g. "1-10:2.0,10-100:1.0,100+:0.5".
type StrategyConfig struct {
	Mode               string  `toml:"mode"`
	CopySize           float64 `toml:"copy_size"`
	MinOrderSizeUsd    float64 `toml:"min_order_size_usd"`
	MaxOrderSizeUsd    float64 `toml:"max_order_size_usd"`
	MaxPositionSizeUsd float64 `toml:"max_position_size_usd"`
	TieredMultipliers  string  `toml:"tiered_multipliers"`
	MaxPriceSlippage   float64 `toml:"max_price_slippage"`
	RetryLimit         int     `toml:"retry_limit"`
}

// NotifyConfig holds notification channel settings. Channels with empty
// credentials are simply not registered.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

var validModes = map[string]bool{
	"copy":    true,
	"monitor": true,
	"execute": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validStrategyModes = map[string]bool{
	"PERCENTAGE": true,
	"FIXED":      true,
	"ADAPTIVE":   true,
}

// Defaults returns the built-in default configuration.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			DataHost:      "https://data-api.polymarket.com",
			WsHost:        "wss://ws-live-data.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Chain: ChainConfig{
			RPCURL:       "https://polygon-rpc.com",
			USDCContract: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polycopy",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			CacheTTLSeconds: 5,
		},
		S3: S3Config{
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "polycopy-archive",
			ForcePathStyle:       true,
			ArchiveRetentionDays: 30,
			ArchiveCron:          "0 3 * * *",
		},
		Copy: CopyConfig{
			FetchIntervalMs: 1000,
			PollIntervalMs:  300,
			TooOldHours:     24,
			Aggregation: AggregationConfig{
				Enabled:       true,
				WindowSeconds: 30,
				MinTotalUsd:   1.0,
			},
		},
		Strategy: StrategyConfig{
			Mode:             "PERCENTAGE",
			CopySize:         1.0,
			MinOrderSizeUsd:  1.0,
			MaxOrderSizeUsd:  100.0,
			MaxPriceSlippage: 0.05,
			RetryLimit:       3,
		},
		Mode:     "copy",
		LogLevel: "info",
	}
}

// Validate checks the configuration for fatal problems. It returns one error
// aggregating every violation so operators can fix them in a single pass.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: copy, monitor, execute)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Traders to follow are required in every mode.
	if len(c.Copy.TraderAddresses) == 0 {
		errs = append(errs, "copy: trader_addresses must not be empty")
	}
	for _, addr := range c.Copy.TraderAddresses {
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
			errs = append(errs, fmt.Sprintf("copy: %q is not a valid wallet address", addr))
		}
	}
	if c.Copy.FetchIntervalMs <= 0 {
		errs = append(errs, "copy: fetch_interval_ms must be positive")
	}
	if c.Copy.PollIntervalMs <= 0 {
		errs = append(errs, "copy: poll_interval_ms must be positive")
	}
	if c.Copy.Aggregation.Enabled {
		if c.Copy.Aggregation.WindowSeconds <= 0 {
			errs = append(errs, "copy.aggregation: window_seconds must be positive")
		}
		if c.Copy.Aggregation.MinTotalUsd <= 0 {
			errs = append(errs, "copy.aggregation: min_total_usd must be positive")
		}
	}

	// Wallet — every mode reads the operator's balance and positions, so the
	// proxy address is always required; only executing modes need a key.
	if c.Wallet.ProxyAddress == "" {
		errs = append(errs, "wallet: proxy_address must be set")
	}
	needsWallet := c.Mode == "copy" || c.Mode == "execute"
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
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

	// Strategy — the sizing engine re-validates bounds at construction; this
	// catches the obvious misconfigurations before anything connects.
	if !validStrategyModes[strings.ToUpper(c.Strategy.Mode)] {
		errs = append(errs, fmt.Sprintf("strategy: unknown mode %q (valid: PERCENTAGE, FIXED, ADAPTIVE)", c.Strategy.Mode))
	}
	if c.Strategy.CopySize <= 0 {
		errs = append(errs, "strategy: copy_size must be positive")
	}
	if c.Strategy.MinOrderSizeUsd <= 0 {
		errs = append(errs, "strategy: min_order_size_usd must be positive")
	}
	if c.Strategy.MaxOrderSizeUsd <= 0 {
		errs = append(errs, "strategy: max_order_size_usd must be positive")
	}
	if c.Strategy.MinOrderSizeUsd > c.Strategy.MaxOrderSizeUsd {
		errs = append(errs, "strategy: min_order_size_usd cannot be greater than max_order_size_usd")
	}
	if c.Strategy.RetryLimit < 1 {
		errs = append(errs, "strategy: retry_limit must be >= 1")
	}

	// S3 — only when archiving is on.
	if c.S3.ArchiveEnabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive_enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archive_enabled")
		}
		if c.S3.ArchiveRetentionDays < 1 {
			errs = append(errs, "s3: archive_retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
