package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"leverscope/internal/model"
	"leverscope/internal/storage"
)

type poolKey struct {
	address string
	chainID uint64
}

type positionKey struct {
	userID  string
	address string
	chainID uint64
}

// Store is an in-memory implementation of storage.Store, used for tests and
// single-binary runs without a database.
type Store struct {
	mu        sync.RWMutex
	pools     map[poolKey]model.Pool
	positions map[positionKey]model.Position
	txs       map[string]model.PendingTransaction
}

func NewStore() *Store {
	return &Store{
		pools:     make(map[poolKey]model.Pool),
		positions: make(map[positionKey]model.Position),
		txs:       make(map[string]model.PendingTransaction),
	}
}

func normalize(address string) string {
	return strings.ToLower(address)
}

// UpsertPools inserts or refreshes pools, preserving discovered_at on update.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pool := range pools {
		key := poolKey{address: normalize(pool.PoolAddress), chainID: pool.ChainID}
		if existing, ok := s.pools[key]; ok {
			pool.DiscoveredAt = existing.DiscoveredAt
		}
		s.pools[key] = pool
	}
	return nil
}

// DeactivateUnseen flips active=false for the chain's pools missing from seen.
func (s *Store) DeactivateUnseen(ctx context.Context, chainID uint64, seen []string) error {
	seenSet := make(map[string]struct{}, len(seen))
	for _, address := range seen {
		seenSet[normalize(address)] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, pool := range s.pools {
		if key.chainID != chainID {
			continue
		}
		if _, ok := seenSet[key.address]; ok {
			continue
		}
		if pool.Active {
			pool.Active = false
			s.pools[key] = pool
		}
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, poolAddress string, chainID uint64) (model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[poolKey{address: normalize(poolAddress), chainID: chainID}]
	if !ok {
		return model.Pool{}, fmt.Errorf("pool %s on chain %d: %w", poolAddress, chainID, storage.ErrNotFound)
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context, filter storage.PoolFilter) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, pool := range s.pools {
		if filter.ActiveOnly && !pool.Active {
			continue
		}
		if filter.ChainID != 0 && pool.ChainID != filter.ChainID {
			continue
		}
		if filter.Asset != "" && !strings.EqualFold(pool.UnderlyingSymbol, filter.Asset) {
			continue
		}
		if pool.SupplyAPY < filter.MinSupplyAPY {
			continue
		}
		if filter.MaxUtilization > 0 && pool.Utilization > filter.MaxUtilization {
			continue
		}
		pools = append(pools, pool)
	}

	sort.Slice(pools, func(i, j int) bool {
		return pools[i].SupplyAPY > pools[j].SupplyAPY
	})
	return pools, nil
}

func (s *Store) UpsertPosition(ctx context.Context, position model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := positionKey{
		userID:  position.UserID,
		address: normalize(position.PoolAddress),
		chainID: position.ChainID,
	}
	if existing, ok := s.positions[key]; ok {
		position.DepositedAt = existing.DepositedAt
	}
	s.positions[key] = position
	return nil
}

func (s *Store) GetPosition(ctx context.Context, userID, poolAddress string, chainID uint64) (model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	position, ok := s.positions[positionKey{userID: userID, address: normalize(poolAddress), chainID: chainID}]
	if !ok {
		return model.Position{}, fmt.Errorf("position for %s in %s on chain %d: %w", userID, poolAddress, chainID, storage.ErrNotFound)
	}
	return position, nil
}

func (s *Store) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]model.Position, 0)
	for key, position := range s.positions {
		if key.userID == userID {
			positions = append(positions, position)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].DepositedAt.Before(positions[j].DepositedAt)
	})
	return positions, nil
}

func (s *Store) InsertPending(ctx context.Context, tx model.PendingTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[tx.TxHash]; ok {
		return fmt.Errorf("transaction %s already recorded", tx.TxHash)
	}
	s.txs[tx.TxHash] = tx
	return nil
}

func (s *Store) MarkConfirmed(ctx context.Context, txHash string, confirmedAt time.Time) error {
	return s.transition(txHash, func(tx *model.PendingTransaction) {
		tx.Status = model.TxConfirmed
		tx.ConfirmedAt = &confirmedAt
	})
}

func (s *Store) MarkFailed(ctx context.Context, txHash string, reason string) error {
	return s.transition(txHash, func(tx *model.PendingTransaction) {
		tx.Status = model.TxFailed
		tx.Error = reason
	})
}

func (s *Store) transition(txHash string, apply func(*model.PendingTransaction)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[txHash]
	if !ok {
		return fmt.Errorf("transaction %s: %w", txHash, storage.ErrNotFound)
	}
	if tx.Status != model.TxPending {
		return fmt.Errorf("transaction %s: %w", txHash, storage.ErrTerminalTransition)
	}
	apply(&tx)
	s.txs[txHash] = tx
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txHash string) (model.PendingTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[txHash]
	if !ok {
		return model.PendingTransaction{}, fmt.Errorf("transaction %s: %w", txHash, storage.ErrNotFound)
	}
	return tx, nil
}
