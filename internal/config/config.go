// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
)

// Config holds gas benchmark configuration.
type Config struct {
	RPCURL string // HTTP JSON-RPC endpoint of the local chain
	WSURL  string // WebSocket endpoint for newHeads (empty = no block watcher)

	BlockTime   int // Seconds between mined blocks (0 = mine every tx instantly)
	NumAccounts int // Number of funded accounts used in parallel by the pipeliner
	CallCount   int // Deposit calls per contract in pipeline mode
	GasPriceGwei int64 // Gas price in gwei for all benchmark transactions
	MaxPower    int // Highest exponent k in precount mode (targets 2^k - 1)

	OutDir       string // Directory for CSV and chart output
	DatabasePath string // SQLite history database ("" = no persistence)
	MetricsAddr  string // Prometheus listen address ("" = no metrics server)

	SkipBuild bool // Skip the forge build step
}

// Defaults
const (
	DefaultRPCURL       = "http://127.0.0.1:8545"
	DefaultWSURL        = "ws://127.0.0.1:8545"
	DefaultBlockTime    = 0
	DefaultNumAccounts  = 20
	DefaultCallCount    = 25000
	DefaultGasPriceGwei = 1
	DefaultMaxPower     = 28
	DefaultOutDir       = "gas_out"
	DefaultDatabasePath = ""
	DefaultMetricsAddr  = ""
)

// Load builds a Config from environment variables, falling back to the
// documented defaults. Recognized variables: BLOCK_TIME, NUM_ACCOUNTS, N,
// GAS_GWEI, MAX_POWER, RPC_URL, WS_URL, OUT_DIR, DATABASE_PATH, METRICS_ADDR.
func Load() *Config {
	cfg := &Config{
		RPCURL:       DefaultRPCURL,
		WSURL:        DefaultWSURL,
		BlockTime:    DefaultBlockTime,
		NumAccounts:  DefaultNumAccounts,
		CallCount:    DefaultCallCount,
		GasPriceGwei: DefaultGasPriceGwei,
		MaxPower:     DefaultMaxPower,
		OutDir:       DefaultOutDir,
		DatabasePath: DefaultDatabasePath,
		MetricsAddr:  DefaultMetricsAddr,
	}

	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := os.Getenv("OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("BLOCK_TIME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BlockTime = n
		}
	}
	if v := os.Getenv("NUM_ACCOUNTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NumAccounts = n
		}
	}
	if v := os.Getenv("N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CallCount = n
		}
	}
	if v := os.Getenv("GAS_GWEI"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.GasPriceGwei = n
		}
	}
	if v := os.Getenv("MAX_POWER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPower = n
		}
	}

	return cfg
}

// GasPriceWei returns the configured gas price converted to wei.
func (c *Config) GasPriceWei() *big.Int {
	return new(big.Int).Mul(big.NewInt(c.GasPriceGwei), big.NewInt(1e9))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.NumAccounts <= 0 {
		return fmt.Errorf("number of accounts must be positive")
	}
	if c.CallCount <= 0 {
		return fmt.Errorf("call count must be positive")
	}
	if c.GasPriceGwei <= 0 {
		return fmt.Errorf("gas price must be positive")
	}
	if c.MaxPower <= 0 || c.MaxPower > 62 {
		return fmt.Errorf("max power must be in [1, 62]")
	}
	if c.BlockTime < 0 {
		return fmt.Errorf("block time cannot be negative")
	}
	if c.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}
