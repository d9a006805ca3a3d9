package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns defaults patched to pass validation in monitor mode.
func validConfig() Config {
	cfg := Defaults()
	cfg.Mode = "monitor"
	cfg.Wallet.ProxyAddress = "0x9999999999999999999999999999999999999999"
	cfg.Copy.TraderAddresses = []string{"0x1111111111111111111111111111111111111111"}
	return cfg
}

func TestValidate_DefaultsWithTraderAndWallet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_RequiresTraders(t *testing.T) {
	cfg := validConfig()
	cfg.Copy.TraderAddresses = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trader_addresses")
}

func TestValidate_RejectsMalformedTraderAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Copy.TraderAddresses = []string{"nope"}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid wallet address")
}

func TestValidate_CopyModeNeedsKey(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "copy"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key or encrypted_key_path")

	cfg.Wallet.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	require.NoError(t, cfg.Validate())
}

func TestValidate_EncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "copy"
	cfg.Wallet.EncryptedKeyPath = "/etc/polycopy/key.enc"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password")
}

func TestValidate_MonitorModeNeedsNoKey(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "yolo"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "yolo"`)
}

func TestValidate_StrategyBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.MinOrderSizeUsd = 50
	cfg.Strategy.MaxOrderSizeUsd = 10
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_order_size_usd cannot be greater")
}

func TestValidate_AggregationBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Copy.Aggregation.Enabled = true
	cfg.Copy.Aggregation.WindowSeconds = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window_seconds")
}

func TestValidate_ArchiveRequiresBucket(t *testing.T) {
	cfg := validConfig()
	cfg.S3.ArchiveEnabled = true
	cfg.S3.Bucket = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestValidate_AggregatesAllViolations(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "bogus"
	cfg.Copy.TraderAddresses = nil
	cfg.Strategy.CopySize = 0
	err := cfg.Validate()
	require.Error(t, err)
	// One error reports every violation on its own line.
	assert.GreaterOrEqual(t, strings.Count(err.Error(), "\n"), 2)
}
