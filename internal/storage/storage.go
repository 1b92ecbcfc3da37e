package storage

import (
	"context"
	"errors"
	"time"

	"leverscope/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminalTransition is returned when a pending transaction is moved to a
// terminal state twice.
var ErrTerminalTransition = errors.New("transaction already in terminal state")

// PoolFilter narrows a pool listing.
type PoolFilter struct {
	Asset          string
	ChainID        uint64
	MinSupplyAPY   float64
	MaxUtilization float64
	ActiveOnly     bool
}

// PoolStore caches discovered pools keyed by (pool_address, chain_id).
type PoolStore interface {
	// UpsertPools inserts or refreshes pools. discovered_at is written once on
	// first insert and never overwritten.
	UpsertPools(ctx context.Context, pools []model.Pool) error
	// DeactivateUnseen flips active=false for every pool of the chain whose
	// address is not in seen. Rows are never deleted.
	DeactivateUnseen(ctx context.Context, chainID uint64, seen []string) error
	GetPool(ctx context.Context, poolAddress string, chainID uint64) (model.Pool, error)
	ListPools(ctx context.Context, filter PoolFilter) ([]model.Pool, error)
}

// PositionStore persists user positions keyed by (user_id, pool_address, chain_id).
type PositionStore interface {
	UpsertPosition(ctx context.Context, position model.Position) error
	GetPosition(ctx context.Context, userID, poolAddress string, chainID uint64) (model.Position, error)
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)
}

// TxStore persists submitted transactions keyed by tx hash. Status moves
// pending -> confirmed or pending -> failed exactly once.
type TxStore interface {
	InsertPending(ctx context.Context, tx model.PendingTransaction) error
	MarkConfirmed(ctx context.Context, txHash string, confirmedAt time.Time) error
	MarkFailed(ctx context.Context, txHash string, reason string) error
	GetTransaction(ctx context.Context, txHash string) (model.PendingTransaction, error)
}

// Store is the combined persistence surface.
type Store interface {
	PoolStore
	PositionStore
	TxStore
}
