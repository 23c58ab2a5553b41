package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	root := &cobra.Command{
		Use:          "binscope",
		Short:        "DLMM position lifecycle with validated bin liquidity",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("rpc", "", "Solana RPC URL")
	flags.Float64("rpc-rate-limit", 0, "maximum account reads per second, 0 for no limit")
	flags.String("program-id", "", "DLMM program id")
	flags.String("keypair", "", "signer keypair file (solana-keygen format)")
	flags.String("commitment", "confirmed", "commitment (processed, confirmed, finalized)")
	flags.Uint32("compute-unit-limit", 0, "compute unit limit, 0 to omit")
	flags.Uint64("compute-unit-price", 0, "compute unit price in micro-lamports, 0 to omit")
	flags.Duration("tx-timeout", 90*time.Second, "confirmation timeout per hand-off")
	flags.Int("max-retries", 5, "maximum retry attempts for account reads")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff for account reads")
	flags.String("journal", "./data/operations.jsonl", "operation journal JSONL path, empty to disable")
	flags.String("pg-dsn", "", "Postgres DSN for the operation journal (overrides --journal)")
	flags.Bool("dry-run", false, "build and log instructions without sending them")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated by size")

	root.AddCommand(operationCommands(false)...)

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Validate an operation and print the hand-off without sending it",
	}
	planCmd.AddCommand(operationCommands(true)...)
	root.AddCommand(planCmd)

	root.AddCommand(shardsCommand())
	root.AddCommand(historyCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
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

	logger, err := cfg.Build()
	if err != nil || file == "" {
		return logger, err
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     30,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotating, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	})), nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
