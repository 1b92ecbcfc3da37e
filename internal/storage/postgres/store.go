package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leverscope/internal/model"
	"leverscope/internal/storage"
)

// Store provides Postgres persistence for pools, positions and transactions.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPools inserts or updates pool rows. discovered_at is set on first
// insert only; every refresh updates the live metrics and last_seen_at.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				pool_address, chain_id, display_name, underlying_symbol, underlying_address,
				underlying_decimals, tvl, supply_apy, borrow_apy, utilization, strategy,
				active, discovered_at, last_seen_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (pool_address, chain_id)
			DO UPDATE SET
				display_name = EXCLUDED.display_name,
				underlying_symbol = EXCLUDED.underlying_symbol,
				underlying_address = EXCLUDED.underlying_address,
				underlying_decimals = EXCLUDED.underlying_decimals,
				tvl = EXCLUDED.tvl,
				supply_apy = EXCLUDED.supply_apy,
				borrow_apy = EXCLUDED.borrow_apy,
				utilization = EXCLUDED.utilization,
				strategy = EXCLUDED.strategy,
				active = EXCLUDED.active,
				last_seen_at = EXCLUDED.last_seen_at
		`,
			pool.PoolAddress,
			int64(pool.ChainID),
			pool.DisplayName,
			pool.UnderlyingSymbol,
			pool.UnderlyingAddress,
			int16(pool.UnderlyingDecimals),
			pool.TVL,
			pool.SupplyAPY,
			pool.BorrowAPY,
			pool.Utilization,
			string(pool.Strategy),
			pool.Active,
			pool.DiscoveredAt,
			pool.LastSeenAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range pools {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateUnseen soft-removes the chain's pools missing from seen.
func (s *Store) DeactivateUnseen(ctx context.Context, chainID uint64, seen []string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pools SET active = false
		WHERE chain_id = $1 AND active AND NOT (lower(pool_address) = ANY($2))
	`, int64(chainID), lowered(seen))
	return err
}

func (s *Store) GetPool(ctx context.Context, poolAddress string, chainID uint64) (model.Pool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT pool_address, chain_id, display_name, underlying_symbol, underlying_address,
			underlying_decimals, tvl, supply_apy, borrow_apy, utilization, strategy,
			active, discovered_at, last_seen_at
		FROM pools
		WHERE lower(pool_address) = lower($1) AND chain_id = $2
	`, poolAddress, int64(chainID))

	pool, err := scanPool(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, fmt.Errorf("pool %s on chain %d: %w", poolAddress, chainID, storage.ErrNotFound)
		}
		return model.Pool{}, err
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context, filter storage.PoolFilter) ([]model.Pool, error) {
	query := `
		SELECT pool_address, chain_id, display_name, underlying_symbol, underlying_address,
			underlying_decimals, tvl, supply_apy, borrow_apy, utilization, strategy,
			active, discovered_at, last_seen_at
		FROM pools
		WHERE supply_apy >= $1
			AND ($2 = '' OR lower(underlying_symbol) = lower($2))
			AND ($3 = 0 OR chain_id = $3)
			AND ($4 = 0 OR utilization <= $4)
			AND (NOT $5 OR active)
		ORDER BY supply_apy DESC
	`
	rows, err := s.pool.Query(ctx, query,
		filter.MinSupplyAPY,
		filter.Asset,
		int64(filter.ChainID),
		filter.MaxUtilization,
		filter.ActiveOnly,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := make([]model.Pool, 0)
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, pool)
	}
	return pools, rows.Err()
}

// UpsertPosition inserts or updates a position, keeping the original
// deposited_at on update.
func (s *Store) UpsertPosition(ctx context.Context, p model.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			user_id, pool_address, chain_id, shares, deposited_amount, current_value,
			initial_supply_apy, current_supply_apy, initial_borrow_apy, current_borrow_apy,
			net_apy, leverage, health_factor, deposited_at, last_updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (user_id, pool_address, chain_id)
		DO UPDATE SET
			shares = EXCLUDED.shares,
			deposited_amount = EXCLUDED.deposited_amount,
			current_value = EXCLUDED.current_value,
			current_supply_apy = EXCLUDED.current_supply_apy,
			current_borrow_apy = EXCLUDED.current_borrow_apy,
			net_apy = EXCLUDED.net_apy,
			leverage = EXCLUDED.leverage,
			health_factor = EXCLUDED.health_factor,
			last_updated_at = EXCLUDED.last_updated_at
	`,
		p.UserID,
		p.PoolAddress,
		int64(p.ChainID),
		p.Shares,
		p.DepositedAmount,
		p.CurrentValue,
		p.InitialSupplyAPY,
		p.CurrentSupplyAPY,
		p.InitialBorrowAPY,
		p.CurrentBorrowAPY,
		p.NetAPY,
		p.Leverage,
		p.HealthFactor,
		p.DepositedAt,
		p.LastUpdatedAt,
	)
	return err
}

func (s *Store) GetPosition(ctx context.Context, userID, poolAddress string, chainID uint64) (model.Position, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, pool_address, chain_id, shares, deposited_amount, current_value,
			initial_supply_apy, current_supply_apy, initial_borrow_apy, current_borrow_apy,
			net_apy, leverage, health_factor, deposited_at, last_updated_at
		FROM positions
		WHERE user_id = $1 AND lower(pool_address) = lower($2) AND chain_id = $3
	`, userID, poolAddress, int64(chainID))

	position, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Position{}, fmt.Errorf("position: %w", storage.ErrNotFound)
		}
		return model.Position{}, err
	}
	return position, nil
}

func (s *Store) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, pool_address, chain_id, shares, deposited_amount, current_value,
			initial_supply_apy, current_supply_apy, initial_borrow_apy, current_borrow_apy,
			net_apy, leverage, health_factor, deposited_at, last_updated_at
		FROM positions
		WHERE user_id = $1
		ORDER BY deposited_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make([]model.Position, 0)
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, rows.Err()
}

func (s *Store) InsertPending(ctx context.Context, tx model.PendingTransaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_transactions (
			tx_hash, attempt_id, user_id, tx_type, chain_id, pool_address,
			token_address, amount, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		tx.TxHash,
		tx.AttemptID,
		tx.UserID,
		string(tx.TxType),
		int64(tx.ChainID),
		tx.PoolAddress,
		tx.TokenAddress,
		tx.Amount,
		string(tx.Status),
		tx.CreatedAt,
	)
	return err
}

// MarkConfirmed moves a pending transaction to confirmed. The status guard
// makes the terminal transition happen at most once.
func (s *Store) MarkConfirmed(ctx context.Context, txHash string, confirmedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_transactions
		SET status = 'confirmed', confirmed_at = $2
		WHERE tx_hash = $1 AND status = 'pending'
	`, txHash, confirmedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", txHash, storage.ErrTerminalTransition)
	}
	return nil
}

// MarkFailed moves a pending transaction to failed with the given reason.
func (s *Store) MarkFailed(ctx context.Context, txHash string, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_transactions
		SET status = 'failed', error = $2
		WHERE tx_hash = $1 AND status = 'pending'
	`, txHash, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", txHash, storage.ErrTerminalTransition)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txHash string) (model.PendingTransaction, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT tx_hash, attempt_id, user_id, tx_type, chain_id, pool_address,
			token_address, amount, status, created_at, confirmed_at, error
		FROM pending_transactions
		WHERE tx_hash = $1
	`, txHash)

	var (
		tx          model.PendingTransaction
		txType      string
		status      string
		chainID     int64
		confirmedAt *time.Time
		txError     *string
	)
	err := row.Scan(&tx.TxHash, &tx.AttemptID, &tx.UserID, &txType, &chainID, &tx.PoolAddress,
		&tx.TokenAddress, &tx.Amount, &status, &tx.CreatedAt, &confirmedAt, &txError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingTransaction{}, fmt.Errorf("transaction %s: %w", txHash, storage.ErrNotFound)
		}
		return model.PendingTransaction{}, err
	}
	tx.TxType = model.TxType(txType)
	tx.Status = model.TxStatus(status)
	tx.ChainID = uint64(chainID)
	tx.ConfirmedAt = confirmedAt
	if txError != nil {
		tx.Error = *txError
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPool(row rowScanner) (model.Pool, error) {
	var (
		pool     model.Pool
		chainID  int64
		decimals int16
		strategy string
	)
	err := row.Scan(&pool.PoolAddress, &chainID, &pool.DisplayName, &pool.UnderlyingSymbol,
		&pool.UnderlyingAddress, &decimals, &pool.TVL, &pool.SupplyAPY, &pool.BorrowAPY,
		&pool.Utilization, &strategy, &pool.Active, &pool.DiscoveredAt, &pool.LastSeenAt)
	if err != nil {
		return model.Pool{}, err
	}
	pool.ChainID = uint64(chainID)
	pool.UnderlyingDecimals = uint8(decimals)
	pool.Strategy = model.Strategy(strategy)
	return pool, nil
}

func scanPosition(row rowScanner) (model.Position, error) {
	var (
		position model.Position
		chainID  int64
	)
	err := row.Scan(&position.UserID, &position.PoolAddress, &chainID, &position.Shares,
		&position.DepositedAmount, &position.CurrentValue, &position.InitialSupplyAPY,
		&position.CurrentSupplyAPY, &position.InitialBorrowAPY, &position.CurrentBorrowAPY,
		&position.NetAPY, &position.Leverage, &position.HealthFactor,
		&position.DepositedAt, &position.LastUpdatedAt)
	if err != nil {
		return model.Position{}, err
	}
	position.ChainID = uint64(chainID)
	return position, nil
}

func lowered(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.ToLower(item))
	}
	return out
}
