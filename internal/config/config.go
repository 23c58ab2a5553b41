package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultProgramID is the DLMM program on mainnet and devnet.
const DefaultProgramID = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL           string
	RPCRateLimit     float64
	ProgramID        string
	Keypair          string
	Commitment       string
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
	TxTimeout        time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	Journal          string
	PGDSN            string
	DryRun           bool
	LogLevel         string
	LogFile          string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BINSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc", "https://api.mainnet-beta.solana.com")
	v.SetDefault("rpc-rate-limit", 0.0)
	v.SetDefault("program-id", DefaultProgramID)
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("compute-unit-limit", uint32(0))
	v.SetDefault("compute-unit-price", uint64(0))
	v.SetDefault("tx-timeout", 90*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("dry-run", false)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:           v.GetString("rpc"),
		RPCRateLimit:     v.GetFloat64("rpc-rate-limit"),
		ProgramID:        v.GetString("program-id"),
		Keypair:          v.GetString("keypair"),
		Commitment:       strings.ToLower(strings.TrimSpace(v.GetString("commitment"))),
		ComputeUnitLimit: v.GetUint32("compute-unit-limit"),
		ComputeUnitPrice: v.GetUint64("compute-unit-price"),
		TxTimeout:        v.GetDuration("tx-timeout"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		Journal:          v.GetString("journal"),
		PGDSN:            v.GetString("pg-dsn"),
		DryRun:           v.GetBool("dry-run"),
		LogLevel:         v.GetString("log-level"),
		LogFile:          v.GetString("log-file"),
	}

	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return Config{}, fmt.Errorf("invalid commitment: %q", cfg.Commitment)
	}

	return cfg, nil
}
