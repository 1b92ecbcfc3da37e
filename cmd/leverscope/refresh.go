package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leverscope/internal/chain"
	"leverscope/internal/config"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
	"leverscope/internal/storage/memory"
	"leverscope/internal/storage/postgres"
)

func runRefresh(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chains, err := chain.NewRegistry(ctx, cfg.ChainConfigs(), cfg.Retry(), logger)
	if err != nil {
		return fmt.Errorf("dial chains: %w", err)
	}
	defer chains.Close()

	store, closeStore, err := openPoolStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	checkpoint := pools.NewRefreshCheckpoint(cfg.Checkpoint, cfg.CheckpointEnabled)
	registry := pools.NewRegistry(chains, store, checkpoint, logger)

	chainID, _ := cmd.Flags().GetUint64("chain")
	watch, _ := cmd.Flags().GetBool("watch")

	if watch {
		scheduler := pools.NewScheduler(registry, logger)
		if err := scheduler.Start(ctx, cfg.RefreshSchedule); err != nil {
			return err
		}
		defer scheduler.Stop()

		logger.Info("refresh watch started", zap.String("schedule", cfg.RefreshSchedule))
		<-ctx.Done()
		return nil
	}

	if chainID != 0 {
		count, err := registry.RefreshChain(ctx, chainID)
		if err != nil {
			return err
		}
		logger.Info("chain refreshed", zap.Uint64("chain_id", chainID), zap.Int("pools", count))
		return nil
	}

	summary := registry.RefreshAll(ctx)
	logger.Info("refresh complete",
		zap.Int("chains_scanned", summary.ChainsScanned),
		zap.Int("chains_failed", summary.ChainsFailed),
		zap.Int("pools_seen", summary.PoolsSeen),
	)
	if summary.ChainsScanned == 0 {
		return fmt.Errorf("no chain could be refreshed")
	}
	return nil
}

// openPoolStore returns the Postgres-backed store when a DSN is configured,
// otherwise an in-process cache for one-shot runs.
func openPoolStore(ctx context.Context, dsn string) (storage.Store, func(), error) {
	if dsn == "" {
		return memory.NewStore(), func() {}, nil
	}
	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, store.Close, nil
}
