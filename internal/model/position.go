package model

import "time"

// Position is a user's stake in a pool, unique per (UserID, PoolAddress,
// ChainID). Leverage is 1 for unleveraged deposits; HealthFactor is set only
// when Leverage > 1.
type Position struct {
	UserID           string     `json:"user_id"`
	PoolAddress      string     `json:"pool_address"`
	ChainID          uint64     `json:"chain_id"`
	Shares           string     `json:"shares"`
	DepositedAmount  float64    `json:"deposited_amount"`
	CurrentValue     float64    `json:"current_value"`
	InitialSupplyAPY float64    `json:"initial_supply_apy"`
	CurrentSupplyAPY float64    `json:"current_supply_apy"`
	InitialBorrowAPY float64    `json:"initial_borrow_apy"`
	CurrentBorrowAPY float64    `json:"current_borrow_apy"`
	NetAPY           float64    `json:"net_apy"`
	Leverage         float64    `json:"leverage"`
	HealthFactor     *float64   `json:"health_factor,omitempty"`
	DepositedAt      time.Time  `json:"deposited_at"`
	LastUpdatedAt    time.Time  `json:"last_updated_at"`
}
