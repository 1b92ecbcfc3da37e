package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"leverscope/internal/calc"
	"leverscope/internal/config"
	"leverscope/internal/price"
)

func runCalc(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	amount, _ := cmd.Flags().GetFloat64("amount")
	leverage, _ := cmd.Flags().GetFloat64("leverage")
	priceUSD, _ := cmd.Flags().GetFloat64("price")
	symbol, _ := cmd.Flags().GetString("symbol")
	supplyAPY, _ := cmd.Flags().GetFloat64("supply-apy")
	borrowAPY, _ := cmd.Flags().GetFloat64("borrow-apy")
	quotaRate, _ := cmd.Flags().GetFloat64("quota-rate")
	liquidationThreshold, _ := cmd.Flags().GetFloat64("liquidation-threshold")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if priceUSD <= 0 {
		if symbol == "" {
			return fmt.Errorf("either --price or --symbol is required")
		}
		feed, err := price.NewFeed(cfg.PriceAPIURL, cfg.PriceCacheTTL, logger)
		if err != nil {
			return err
		}
		priceUSD, err = feed.PriceUSD(context.Background(), symbol)
		if err != nil {
			return fmt.Errorf("price %s: %w", symbol, err)
		}
	}

	report, err := calc.PositionMetrics(calc.PositionParams{
		CollateralAmount:     amount,
		CollateralPriceUSD:   priceUSD,
		Leverage:             leverage,
		BaseAPY:              supplyAPY,
		BorrowAPY:            borrowAPY,
		QuotaRatePercent:     quotaRate,
		LiquidationThreshold: liquidationThreshold,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
