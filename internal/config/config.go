package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Storage backends.
const (
	StorageFile     = "file"
	StorageLevelDB  = "leveldb"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL          string
	WalletRPCURL    string
	PrivateKey      string
	ExpectedChainID uint64
	Factory         string
	Storage         string
	StoragePath     string
	PGDSN           string
	CallTimeout     time.Duration
	TxTimeout       time.Duration
	PollInterval    time.Duration
	StatusInterval  time.Duration
	BatchSize       uint64
	ScanRetries     int
	RetryBackoff    time.Duration
	DecimalsMode    string
	LogLevel        string
	LogFile         string
	MetricsAddr     string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TOKENCLAIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("expected-chain-id", uint64(1))
	v.SetDefault("storage", StorageFile)
	v.SetDefault("storage-path", "./data/localstorage")
	v.SetDefault("call-timeout", 30*time.Second)
	v.SetDefault("tx-timeout", 5*time.Minute)
	v.SetDefault("poll-interval", 2*time.Second)
	v.SetDefault("status-interval", 3*time.Second)
	v.SetDefault("batch-size", uint64(50000))
	v.SetDefault("scan-retries", 0)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("decimals-mode", "token")
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
		v.SetConfigName("tokenclaim")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:          v.GetString("rpc"),
		WalletRPCURL:    v.GetString("wallet-rpc"),
		PrivateKey:      v.GetString("private-key"),
		ExpectedChainID: v.GetUint64("expected-chain-id"),
		Factory:         strings.TrimSpace(v.GetString("factory")),
		Storage:         strings.ToLower(strings.TrimSpace(v.GetString("storage"))),
		StoragePath:     v.GetString("storage-path"),
		PGDSN:           v.GetString("pg-dsn"),
		CallTimeout:     v.GetDuration("call-timeout"),
		TxTimeout:       v.GetDuration("tx-timeout"),
		PollInterval:    v.GetDuration("poll-interval"),
		StatusInterval:  v.GetDuration("status-interval"),
		BatchSize:       v.GetUint64("batch-size"),
		ScanRetries:     v.GetInt("scan-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		DecimalsMode:    v.GetString("decimals-mode"),
		LogLevel:        v.GetString("log-level"),
		LogFile:         v.GetString("log-file"),
		MetricsAddr:     v.GetString("metrics-addr"),
	}
	if cfg.WalletRPCURL == "" {
		cfg.WalletRPCURL = cfg.RPCURL
	}

	return cfg, nil
}

// Validate checks values that every command relies on.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.ExpectedChainID == 0 {
		return fmt.Errorf("expected chain id must be set")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.Factory != "" && !common.IsHexAddress(c.Factory) {
		return fmt.Errorf("invalid factory address: %s", c.Factory)
	}
	switch c.Storage {
	case StorageFile, StorageLevelDB:
		if c.StoragePath == "" {
			return fmt.Errorf("storage path is required for %s storage", c.Storage)
		}
	case StoragePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage)
	}
	return nil
}

// FactoryAddress returns the configured factory, or the zero address when unset.
func (c Config) FactoryAddress() common.Address {
	if c.Factory == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Factory)
}
