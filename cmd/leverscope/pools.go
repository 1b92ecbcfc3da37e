package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"leverscope/internal/chain"
	"leverscope/internal/config"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
)

func runPools(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openPoolStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer closeStore()

	// Without Postgres there is no cache to read; scan live instead.
	if cfg.PGDSN == "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
		chains, err := chain.NewRegistry(ctx, cfg.ChainConfigs(), cfg.Retry(), logger)
		if err != nil {
			return fmt.Errorf("dial chains: %w", err)
		}
		defer chains.Close()

		registry := pools.NewRegistry(chains, store, pools.NewRefreshCheckpoint("", false), logger)
		if summary := registry.RefreshAll(ctx); summary.ChainsScanned == 0 {
			return fmt.Errorf("no chain could be scanned")
		}
	}

	asset, _ := cmd.Flags().GetString("asset")
	chainID, _ := cmd.Flags().GetUint64("chain")
	minSupplyAPY, _ := cmd.Flags().GetFloat64("min-supply-apy")
	maxUtilization, _ := cmd.Flags().GetFloat64("max-utilization")
	includeInactive, _ := cmd.Flags().GetBool("all")

	listed, err := store.ListPools(ctx, storage.PoolFilter{
		Asset:          asset,
		ChainID:        chainID,
		MinSupplyAPY:   minSupplyAPY,
		MaxUtilization: maxUtilization,
		ActiveOnly:     !includeInactive,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tASSET\tPOOL\tTVL\tSUPPLY APY\tBORROW APY\tUTIL\tSTRATEGY\tACTIVE")
	for _, pool := range listed {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f%%\t%.2f%%\t%.2f%%\t%s\t%t\n",
			pool.ChainID,
			pool.UnderlyingSymbol,
			pool.PoolAddress,
			pool.TVL,
			pool.SupplyAPY,
			pool.BorrowAPY,
			pool.Utilization,
			pool.Strategy,
			pool.Active,
		)
	}
	return w.Flush()
}
