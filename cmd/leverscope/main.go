package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Optional .env next to the binary; real deployments use the environment.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:          "leverscope",
		Short:        "Lending pool scanner and position calculator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Scan configured chains and refresh the pool cache",
		RunE:  runRefresh,
	}

	refreshCmd.Flags().Uint64("chain", 0, "refresh a single chain id (0 means all)")
	refreshCmd.Flags().Bool("watch", false, "keep running on the refresh schedule")
	refreshCmd.Flags().String("refresh-schedule", "@every 10m", "cron schedule for --watch")
	refreshCmd.Flags().String("pg-dsn", "", "Postgres DSN (in-memory cache when empty)")
	refreshCmd.Flags().String("checkpoint", "./data/checkpoint.json", "refresh checkpoint file path")
	refreshCmd.Flags().Bool("checkpoint-enabled", true, "enable refresh checkpointing")
	refreshCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	refreshCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	refreshCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(refreshCmd)

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "List cached pools",
		RunE:  runPools,
	}

	poolsCmd.Flags().String("pg-dsn", "", "Postgres DSN (live scan when empty)")
	poolsCmd.Flags().String("asset", "", "filter by underlying symbol")
	poolsCmd.Flags().Uint64("chain", 0, "filter by chain id")
	poolsCmd.Flags().Float64("min-supply-apy", 0, "minimum supply APY in percent")
	poolsCmd.Flags().Float64("max-utilization", 0, "maximum utilization in percent (0 means no limit)")
	poolsCmd.Flags().Bool("all", false, "include deactivated pools")
	poolsCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(poolsCmd)

	depositCmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit into a pool, signing with " + privateKeyEnv,
		RunE:  runDeposit,
	}

	depositCmd.Flags().String("user", "local", "user id to record the position under")
	depositCmd.Flags().String("pool", "", "pool address")
	depositCmd.Flags().Uint64("chain", 0, "chain id")
	depositCmd.Flags().Float64("amount", 0, "deposit amount in asset units")
	addTransferFlags(depositCmd)

	root.AddCommand(depositCmd)

	withdrawCmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Redeem pool shares, signing with " + privateKeyEnv,
		RunE:  runWithdraw,
	}

	withdrawCmd.Flags().String("user", "local", "user id the position is recorded under")
	withdrawCmd.Flags().String("pool", "", "pool address")
	withdrawCmd.Flags().Uint64("chain", 0, "chain id")
	withdrawCmd.Flags().String("shares", "", "share amount to redeem (integer)")
	addTransferFlags(withdrawCmd)

	root.AddCommand(withdrawCmd)

	calcCmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute risk and yield metrics for a position",
		RunE:  runCalc,
	}

	calcCmd.Flags().Float64("amount", 0, "collateral amount in asset units")
	calcCmd.Flags().Float64("leverage", 1, "leverage multiplier (1 means no borrow)")
	calcCmd.Flags().Float64("price", 0, "collateral price in USD (price feed when 0)")
	calcCmd.Flags().String("symbol", "", "asset symbol for the price feed lookup")
	calcCmd.Flags().Float64("supply-apy", 0, "pool supply APY in percent")
	calcCmd.Flags().Float64("borrow-apy", 0, "pool borrow APY in percent")
	calcCmd.Flags().Float64("quota-rate", 0, "quota rate in percent")
	calcCmd.Flags().Float64("liquidation-threshold", 0, "liquidation threshold (protocol default when 0)")
	calcCmd.Flags().String("price-api", "https://coins.llama.fi/prices/current", "price API base URL")
	calcCmd.Flags().Duration("price-cache-ttl", time.Minute, "price cache TTL")
	calcCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(calcCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addTransferFlags(cmd *cobra.Command) {
	cmd.Flags().String("pg-dsn", "", "Postgres DSN (in-memory cache when empty)")
	cmd.Flags().String("journal", "./data/journal.jsonl", "transaction journal JSONL path")
	cmd.Flags().Duration("confirm-timeout", 3*time.Minute, "confirmation wait ceiling")
	cmd.Flags().Duration("poll-interval", 3*time.Second, "receipt polling cadence")
	cmd.Flags().Duration("session-ttl", 24*time.Hour, "wallet session lifetime")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "refresh checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable refresh checkpointing")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
