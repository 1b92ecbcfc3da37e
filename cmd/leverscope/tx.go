package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"leverscope/internal/chain"
	"leverscope/internal/config"
	"leverscope/internal/executor"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
	"leverscope/internal/units"
	"leverscope/internal/wallet"
)

// privateKeyEnv names the env var holding the signing key. Env only, never a
// flag: flags land in shell history.
const privateKeyEnv = "LEVERSCOPE_PRIVATE_KEY"

func runDeposit(cmd *cobra.Command, _ []string) error {
	return runTransfer(cmd, true)
}

func runWithdraw(cmd *cobra.Command, _ []string) error {
	return runTransfer(cmd, false)
}

func runTransfer(cmd *cobra.Command, isDeposit bool) error {
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

	hexKey := os.Getenv(privateKeyEnv)
	if hexKey == "" {
		return fmt.Errorf("%s is required", privateKeyEnv)
	}

	userID, _ := cmd.Flags().GetString("user")
	poolAddress, _ := cmd.Flags().GetString("pool")
	chainID, _ := cmd.Flags().GetUint64("chain")
	if poolAddress == "" || chainID == 0 {
		return fmt.Errorf("--pool and --chain are required")
	}

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

	// Without Postgres the pool cache starts empty; scan the target chain so
	// the pool row exists before building the transaction.
	if cfg.PGDSN == "" {
		registry := pools.NewRegistry(chains, store, pools.NewRefreshCheckpoint(cfg.Checkpoint, cfg.CheckpointEnabled), logger)
		if _, err := registry.RefreshChain(ctx, chainID); err != nil {
			return fmt.Errorf("scan chain %d: %w", chainID, err)
		}
	}

	sessions := wallet.NewSessionStore(cfg.SessionTTL, logger)
	defer sessions.Close()
	signer := wallet.NewLocalSigner(sessions, wallet.NewChainBroadcasters(chains), logger)
	if _, err := signer.ConnectHex(userID, hexKey, []uint64{chainID}); err != nil {
		return err
	}
	defer signer.Disconnect(context.Background(), userID)

	orch := executor.NewOrchestrator(
		executor.NewChainBackend(chains),
		signer,
		store,
		storage.NewJournal(cfg.JournalPath),
		executor.Config{ConfirmTimeout: cfg.ConfirmTimeout, PollInterval: cfg.PollInterval},
		logger,
	)

	if isDeposit {
		amount, _ := cmd.Flags().GetFloat64("amount")
		if amount <= 0 {
			return fmt.Errorf("--amount must be positive")
		}
		pool, err := store.GetPool(ctx, poolAddress, chainID)
		if err != nil {
			return fmt.Errorf("load pool: %w", err)
		}

		res, err := orch.ExecuteDeposit(ctx, userID, poolAddress, chainID, units.ToWei(amount, pool.UnderlyingDecimals))
		if err != nil {
			return err
		}
		logger.Info("deposit confirmed",
			zap.String("tx_hash", res.TxHash),
			zap.String("shares", res.Shares.String()),
			zap.Bool("shares_from_logs", res.SharesFromLogs))
		return nil
	}

	sharesStr, _ := cmd.Flags().GetString("shares")
	shares, ok := new(big.Int).SetString(sharesStr, 10)
	if !ok {
		return fmt.Errorf("--shares must be an integer share amount")
	}

	res, err := orch.ExecuteWithdraw(ctx, userID, poolAddress, chainID, shares)
	if err != nil {
		return err
	}
	logger.Info("withdraw confirmed",
		zap.String("tx_hash", res.TxHash),
		zap.String("assets_received", res.AssetsReceived.String()),
		zap.Bool("assets_from_logs", res.AssetsFromLogs))
	return nil
}
