package model

import "time"

// Strategy identifies how a pool is entered.
type Strategy string

const (
	// StrategyPassiveLending is a plain deposit into the lending vault.
	StrategyPassiveLending Strategy = "passive_lending"
	// StrategyLeveragedCreditAccount enters through a credit account with
	// borrowed debt. Discovery for it sits behind a per-chain capability flag.
	StrategyLeveragedCreditAccount Strategy = "leveraged_credit_account"
)

// Pool is a lending vault for one underlying asset on one chain, unique per
// (PoolAddress, ChainID). Pools are soft-deactivated, never deleted: a refresh
// pass that no longer observes one flips Active to false.
type Pool struct {
	PoolAddress        string    `json:"pool_address"`
	ChainID            uint64    `json:"chain_id"`
	DisplayName        string    `json:"display_name"`
	UnderlyingSymbol   string    `json:"underlying_symbol"`
	UnderlyingAddress  string    `json:"underlying_address"`
	UnderlyingDecimals uint8     `json:"underlying_decimals"`
	TVL                float64   `json:"tvl"`
	SupplyAPY          float64   `json:"supply_apy"`
	BorrowAPY          float64   `json:"borrow_apy"`
	Utilization        float64   `json:"utilization"`
	Strategy           Strategy  `json:"strategy"`
	Active             bool      `json:"active"`
	DiscoveredAt       time.Time `json:"discovered_at"`
	LastSeenAt         time.Time `json:"last_seen_at"`
}
