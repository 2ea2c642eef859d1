package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"tokenclaim/internal/activity"
	"tokenclaim/internal/app"
	"tokenclaim/internal/chain"
	"tokenclaim/internal/config"
	"tokenclaim/internal/contract"
	"tokenclaim/internal/history"
	"tokenclaim/internal/scan"
	"tokenclaim/internal/session"
	"tokenclaim/internal/storage"
	"tokenclaim/internal/storage/leveldb"
	"tokenclaim/internal/storage/postgres"
	"tokenclaim/internal/wallet"
)

// runtime owns every resource a command opens.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	client   *chain.Client
	provider *wallet.RPCProvider
	store    storage.Store
	app      *app.App
}

func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	mode, err := contract.ParseDecimalsMode(cfg.DecimalsMode)
	if err != nil {
		return nil, err
	}
	key, err := wallet.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	rt.client, err = chain.NewClient(ctx, cfg.RPCURL, chain.Options{
		CallTimeout: cfg.CallTimeout,
		Metrics:     chain.NewMetrics(rt.registry),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	rt.provider, err = wallet.DialRPCProvider(ctx, cfg.WalletRPCURL, wallet.RPCOptions{
		PrivateKey:   key,
		PollInterval: cfg.PollInterval,
		Logger:       logger.Named("wallet"),
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.store, err = openStore(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	reader := contract.NewReader(rt.client, contract.ReaderOptions{DecimalsMode: mode, Logger: logger.Named("contract")})
	cache := activity.New(rt.store, rt.client, reader, activity.Options{
		Scan: scan.Config{
			BatchSize:    cfg.BatchSize,
			MaxRetries:   cfg.ScanRetries,
			RetryBackoff: cfg.RetryBackoff,
		},
		Logger: logger.Named("activity"),
	})
	rt.app = app.New(app.Deps{
		Session: session.New(rt.provider, session.Options{
			ExpectedChainID: cfg.ExpectedChainID,
			CallTimeout:     cfg.CallTimeout,
			Logger:          logger.Named("session"),
		}),
		Reader: reader,
		Sender: contract.NewTxSender(rt.provider, rt.client, contract.SenderOptions{
			PollInterval: cfg.PollInterval,
			Timeout:      cfg.TxTimeout,
			Logger:       logger.Named("tx"),
		}),
		Activity: cache,
		History:  history.NewRegistry(rt.store, reader, cache, logger.Named("history")),
		Chain:    rt.client,
		Logger:   logger,
	}, app.Config{
		ExpectedChainID: cfg.ExpectedChainID,
		Factory:         cfg.FactoryAddress(),
		StatusInterval:  cfg.StatusInterval,
	})

	logger.Debug("runtime ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("storage", cfg.Storage),
		zap.Uint64("expected_chain_id", cfg.ExpectedChainID),
	)
	return rt, nil
}

func (rt *runtime) Close() {
	if rt.app != nil {
		rt.app.Close()
	}
	if rt.provider != nil {
		rt.provider.Close()
	}
	if rt.client != nil {
		rt.client.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("close storage", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageFile:
		store, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageLevelDB:
		store, err := leveldb.Open(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageMemory:
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage)
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == "" {
		return cfg.Build()
	}
	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level)
	return cfg.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
