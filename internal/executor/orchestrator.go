package executor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"leverscope/internal/model"
	"leverscope/internal/pools"
	"leverscope/internal/storage"
	"leverscope/internal/txbuilder"
	"leverscope/internal/units"
	"leverscope/internal/wallet"
)

// State names one stage of a submitted action.
type State string

const (
	StateIdle              State = "idle"
	StateSessionChecked    State = "session_checked"
	StateChainValidated    State = "chain_validated"
	StateApprovalPending   State = "approval_pending"
	StateApprovalConfirmed State = "approval_confirmed"
	StateActionPending     State = "action_pending"
	StateActionConfirmed   State = "action_confirmed"
	StateFailed            State = "failed"
)

// Config bounds the orchestrator's waits.
type Config struct {
	// SessionTimeout caps session lookup and chain validation.
	SessionTimeout time.Duration
	// ConfirmTimeout caps a single confirmation wait.
	ConfirmTimeout time.Duration
	// PollInterval is the receipt polling cadence.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = 10 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 3 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 3 * time.Second
	}
	return c
}

// Orchestrator sequences built transactions through the wallet-session
// signer, waits for confirmation, and persists the outcome. Submission and
// confirmation waits are never silently retried; only reads go through the
// registry's retry policy.
type Orchestrator struct {
	backend  Backend
	sessions wallet.Sessions
	store    storage.Store
	journal  *storage.Journal
	cfg      Config
	logger   *zap.Logger
}

func NewOrchestrator(backend Backend, sessions wallet.Sessions, store storage.Store, journal *storage.Journal, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		backend:  backend,
		sessions: sessions,
		store:    store,
		journal:  journal,
		cfg:      cfg.withDefaults(),
		logger:   logger,
	}
}

// DepositResult is the outcome of a confirmed deposit.
type DepositResult struct {
	TxHash string
	// Shares minted, parsed from receipt logs when possible, otherwise the
	// pre-computed expected value.
	Shares         *big.Int
	SharesFromLogs bool
}

// WithdrawResult is the outcome of a confirmed withdrawal.
type WithdrawResult struct {
	TxHash         string
	AssetsReceived *big.Int
	AssetsFromLogs bool
}

// ExecuteDeposit runs the full deposit pipeline: session check, chain
// validation, optional approval, deposit submission, confirmation, and
// position upsert.
func (o *Orchestrator) ExecuteDeposit(ctx context.Context, userID, poolAddress string, chainID uint64, amount *big.Int) (DepositResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return DepositResult{}, fmt.Errorf("%w: deposit amount must be positive", txbuilder.ErrInvalidParams)
	}

	session, err := o.resolveSession(ctx, userID, chainID)
	if err != nil {
		return DepositResult{}, err
	}

	pool, err := o.store.GetPool(ctx, poolAddress, chainID)
	if err != nil {
		return DepositResult{}, fmt.Errorf("load pool: %w", err)
	}
	poolAddr := common.HexToAddress(pool.PoolAddress)
	tokenAddr := common.HexToAddress(pool.UnderlyingAddress)

	caller, err := o.backend.Caller(chainID)
	if err != nil {
		return DepositResult{}, err
	}

	attemptID := uuid.NewString()
	approvalDone := false

	// Approval step, only when the standing allowance is short.
	var allowance *big.Int
	err = o.backend.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		allowance, err = pools.FetchAllowance(ctx, caller, tokenAddr, session.WalletAddress, poolAddr)
		return err
	})
	if err != nil {
		return DepositResult{}, fmt.Errorf("read allowance: %w", err)
	}

	if allowance.Cmp(amount) < 0 {
		approveTx, err := txbuilder.Approve(tokenAddr, poolAddr, amount)
		if err != nil {
			return DepositResult{}, err
		}

		o.logger.Info("submitting approval",
			zap.String("user_id", userID),
			zap.Uint64("chain_id", chainID),
			zap.String("pool", pool.PoolAddress),
			zap.String("state", string(StateApprovalPending)))

		_, _, err = o.submitAndConfirm(ctx, session, chainID, pool, model.TxApproval, approveTx, amount.String(), tokenAddr.Hex(), attemptID)
		if err != nil {
			// An approval alone is harmless: no partial state, a retry
			// restarts cleanly from scratch.
			return DepositResult{}, err
		}
		approvalDone = true
	}

	// Pre-compute the shares the vault should mint so a log-parse failure
	// after confirmation still yields a usable result.
	var expectedShares *big.Int
	if err := o.backend.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		expectedShares, err = pools.PreviewDeposit(ctx, caller, poolAddr, amount)
		return err
	}); err != nil {
		o.logger.Warn("previewDeposit failed", zap.String("pool", pool.PoolAddress), zap.Error(err))
		expectedShares = nil
	}

	depositTx, err := txbuilder.Deposit(poolAddr, amount, session.WalletAddress)
	if err != nil {
		return DepositResult{}, err
	}

	o.logger.Info("submitting deposit",
		zap.String("user_id", userID),
		zap.Uint64("chain_id", chainID),
		zap.String("pool", pool.PoolAddress),
		zap.String("state", string(StateActionPending)))

	txHash, receipt, err := o.submitAndConfirm(ctx, session, chainID, pool, model.TxDeposit, depositTx, amount.String(), tokenAddr.Hex(), attemptID)
	if err != nil {
		if approvalDone {
			return DepositResult{}, fmt.Errorf("%w: %v", ErrPartialExecution, err)
		}
		return DepositResult{}, err
	}

	shares, fromLogs := o.sharesFromReceipt(receipt, poolAddr, "Deposit", expectedShares)
	if shares == nil {
		// Chain state is final either way; report success with what we know.
		o.logger.Warn("deposit confirmed but share amount unknown",
			zap.String("tx_hash", txHash.Hex()),
			zap.String("pool", pool.PoolAddress))
		shares = new(big.Int)
	}

	if err := o.recordDeposit(ctx, userID, pool, amount, shares); err != nil {
		o.logger.Error("position upsert failed after confirmed deposit",
			zap.String("tx_hash", txHash.Hex()),
			zap.Error(err))
	}

	o.logger.Info("deposit confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("state", string(StateActionConfirmed)))

	return DepositResult{TxHash: txHash.Hex(), Shares: shares, SharesFromLogs: fromLogs}, nil
}

// ExecuteWithdraw redeems shares from a pool and updates the position.
func (o *Orchestrator) ExecuteWithdraw(ctx context.Context, userID, poolAddress string, chainID uint64, shares *big.Int) (WithdrawResult, error) {
	if shares == nil || shares.Sign() <= 0 {
		return WithdrawResult{}, fmt.Errorf("%w: share amount must be positive", txbuilder.ErrInvalidParams)
	}

	session, err := o.resolveSession(ctx, userID, chainID)
	if err != nil {
		return WithdrawResult{}, err
	}

	pool, err := o.store.GetPool(ctx, poolAddress, chainID)
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("load pool: %w", err)
	}
	poolAddr := common.HexToAddress(pool.PoolAddress)

	caller, err := o.backend.Caller(chainID)
	if err != nil {
		return WithdrawResult{}, err
	}

	var expectedAssets *big.Int
	if err := o.backend.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		expectedAssets, err = pools.PreviewRedeem(ctx, caller, poolAddr, shares)
		return err
	}); err != nil {
		o.logger.Warn("previewRedeem failed", zap.String("pool", pool.PoolAddress), zap.Error(err))
		expectedAssets = nil
	}

	withdrawTx, err := txbuilder.Withdraw(poolAddr, shares, session.WalletAddress, session.WalletAddress)
	if err != nil {
		return WithdrawResult{}, err
	}

	attemptID := uuid.NewString()
	txHash, receipt, err := o.submitAndConfirm(ctx, session, chainID, pool, model.TxWithdraw, withdrawTx, shares.String(), pool.UnderlyingAddress, attemptID)
	if err != nil {
		return WithdrawResult{}, err
	}

	assets, fromLogs := o.assetsFromReceipt(receipt, poolAddr, expectedAssets)
	if assets == nil {
		assets = new(big.Int)
	}

	if err := o.recordWithdraw(ctx, userID, pool, shares, assets); err != nil {
		o.logger.Error("position update failed after confirmed withdraw",
			zap.String("tx_hash", txHash.Hex()),
			zap.Error(err))
	}

	return WithdrawResult{TxHash: txHash.Hex(), AssetsReceived: assets, AssetsFromLogs: fromLogs}, nil
}

// resolveSession loads the user's wallet session and validates the target
// chain, requesting authorization out of band when missing.
func (o *Orchestrator) resolveSession(ctx context.Context, userID string, chainID uint64) (wallet.Session, error) {
	if _, err := o.backend.Config(chainID); err != nil {
		return wallet.Session{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.SessionTimeout)
	defer cancel()

	var (
		session wallet.Session
		ok      bool
	)
	err := o.backend.WithRetry(sctx, func(ctx context.Context) error {
		var err error
		session, ok, err = o.sessions.ActiveSession(ctx, userID)
		return err
	})
	if err != nil {
		return wallet.Session{}, fmt.Errorf("session lookup: %w", err)
	}
	if !ok {
		return wallet.Session{}, ErrNoWalletSession
	}

	if session.Authorized(chainID) {
		return session, nil
	}

	// Best effort: ask the wallet to add the chain, then re-check.
	if err := o.sessions.RequestChain(sctx, userID, chainID); err != nil {
		o.logger.Debug("add-chain request failed", zap.Uint64("chain_id", chainID), zap.Error(err))
	}
	session, ok, err = o.sessions.ActiveSession(sctx, userID)
	if err == nil && ok && session.Authorized(chainID) {
		return session, nil
	}
	return wallet.Session{}, fmt.Errorf("%w: chain %d; reconnect the wallet", ErrChainUnsupported, chainID)
}

// submitAndConfirm sends one transaction through the wallet, persists the
// pending row before waiting, and drives it to a terminal status. Submission
// is never retried.
func (o *Orchestrator) submitAndConfirm(
	ctx context.Context,
	session wallet.Session,
	chainID uint64,
	pool model.Pool,
	txType model.TxType,
	tx model.TxRequest,
	amount string,
	tokenAddress string,
	attemptID string,
) (common.Hash, *types.Receipt, error) {
	cfg, err := o.backend.Config(chainID)
	if err != nil {
		return common.Hash{}, nil, err
	}

	// Gas fields are best effort; the wallet estimates on its own if absent.
	if gas, err := o.backend.EstimateGas(ctx, chainID, session.WalletAddress.Hex(), tx); err == nil {
		tx.GasLimit = gas
	} else {
		if reason, ok := revertReasonFromError(err); ok {
			// The node already evaluated the call and rejected it; surface
			// the revert instead of submitting a transaction that will fail.
			return common.Hash{}, nil, newRevertError(reason, cfg.Name)
		}
		o.logger.Debug("gas estimate failed", zap.Error(err))
	}
	if price, err := o.backend.GasPrice(ctx, chainID); err == nil {
		tx.GasPrice = price
	}

	txHash, err := o.sessions.SendTransaction(ctx, session.UserID, chainID, tx)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("wallet submission: %w", err)
	}

	now := time.Now().UTC()
	pending := model.PendingTransaction{
		TxHash:       txHash.Hex(),
		AttemptID:    attemptID,
		UserID:       session.UserID,
		TxType:       txType,
		ChainID:      chainID,
		PoolAddress:  pool.PoolAddress,
		TokenAddress: tokenAddress,
		Amount:       amount,
		Status:       model.TxPending,
		CreatedAt:    now,
	}
	if err := o.store.InsertPending(ctx, pending); err != nil {
		return txHash, nil, fmt.Errorf("persist pending transaction: %w", err)
	}
	o.appendJournal(pending, "submitted")

	receipt, err := o.waitForReceipt(ctx, chainID, txHash, session, tx, cfg.Name)
	if err != nil {
		if markErr := o.store.MarkFailed(ctx, txHash.Hex(), err.Error()); markErr != nil {
			o.logger.Error("mark failed", zap.String("tx_hash", txHash.Hex()), zap.Error(markErr))
		}
		pending.Status = model.TxFailed
		o.appendJournal(pending, err.Error())
		return txHash, nil, err
	}

	confirmedAt := time.Now().UTC()
	if err := o.store.MarkConfirmed(ctx, txHash.Hex(), confirmedAt); err != nil {
		o.logger.Error("mark confirmed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
	}
	pending.Status = model.TxConfirmed
	o.appendJournal(pending, "confirmed")

	return txHash, receipt, nil
}

// waitForReceipt polls until the transaction lands or the ceiling passes.
func (o *Orchestrator) waitForReceipt(ctx context.Context, chainID uint64, txHash common.Hash, session wallet.Session, tx model.TxRequest, chainName string) (*types.Receipt, error) {
	receipts, err := o.backend.Receipts(chainID)
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(o.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := receipts.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				return receipt, nil
			}
			reason := o.replayRevertReason(ctx, chainID, session, tx, receipt.BlockNumber)
			return nil, newRevertError(reason, chainName)
		case errors.Is(err, ethereum.NotFound):
			// Still pending.
		default:
			o.logger.Debug("receipt poll failed", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w (tx %s)", ErrConfirmationTimeout, txHash.Hex())
		case <-ticker.C:
		}
	}
}

// replayRevertReason re-executes the call at the failing block to recover the
// revert string. Best effort; an empty reason is acceptable.
func (o *Orchestrator) replayRevertReason(ctx context.Context, chainID uint64, session wallet.Session, tx model.TxRequest, blockNumber *big.Int) string {
	caller, err := o.backend.Caller(chainID)
	if err != nil {
		return ""
	}
	msg := ethereum.CallMsg{
		From:  session.WalletAddress,
		To:    &tx.To,
		Data:  tx.Data,
		Value: tx.Value,
	}
	if _, err := caller.CallContract(ctx, msg, blockNumber); err != nil {
		if reason, ok := revertReasonFromError(err); ok {
			return reason
		}
		return err.Error()
	}
	return ""
}

func revertReasonFromError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	idx := strings.Index(lower, "execution reverted")
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len("execution reverted"):])
	reason = strings.TrimPrefix(reason, ":")
	return strings.TrimSpace(reason), true
}

// sharesFromReceipt reads minted shares from the vault's Deposit event,
// falling back to the pre-computed expectation. A parse failure is never a
// transaction failure: the chain state is already final.
func (o *Orchestrator) sharesFromReceipt(receipt *types.Receipt, pool common.Address, event string, expected *big.Int) (*big.Int, bool) {
	_, shares, err := parseShareEvent(receipt, pool, event)
	if err == nil {
		return shares, true
	}
	o.logger.Warn("share event parse failed, using expected value", zap.Error(err))
	return expected, false
}

func (o *Orchestrator) assetsFromReceipt(receipt *types.Receipt, pool common.Address, expected *big.Int) (*big.Int, bool) {
	assets, _, err := parseShareEvent(receipt, pool, "Withdraw")
	if err == nil {
		return assets, true
	}
	o.logger.Warn("withdraw event parse failed, using expected value", zap.Error(err))
	return expected, false
}

// parseShareEvent extracts (assets, shares) from the pool's Deposit or
// Withdraw event in the receipt.
func parseShareEvent(receipt *types.Receipt, pool common.Address, event string) (*big.Int, *big.Int, error) {
	vault, err := pools.VaultABI()
	if err != nil {
		return nil, nil, err
	}
	ev, ok := vault.Events[event]
	if !ok {
		return nil, nil, fmt.Errorf("unknown event %s", event)
	}

	for _, entry := range receipt.Logs {
		if entry == nil || entry.Address != pool {
			continue
		}
		if len(entry.Topics) == 0 || entry.Topics[0] != ev.ID {
			continue
		}
		values, err := ev.Inputs.NonIndexed().Unpack(entry.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack %s data: %w", event, err)
		}
		if len(values) < 2 {
			return nil, nil, fmt.Errorf("%s data too short", event)
		}
		assets, ok := values[0].(*big.Int)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected assets type %T", values[0])
		}
		shares, ok := values[1].(*big.Int)
		if !ok {
			return nil, nil, fmt.Errorf("unexpected shares type %T", values[1])
		}
		return assets, shares, nil
	}
	return nil, nil, fmt.Errorf("no %s event from pool %s in receipt", event, pool.Hex())
}

// recordDeposit upserts the position after a confirmed deposit, preserving
// the entry APYs and deposit time of an existing row.
func (o *Orchestrator) recordDeposit(ctx context.Context, userID string, pool model.Pool, amount, shares *big.Int) error {
	now := time.Now().UTC()
	deposited := units.FromWei(amount, pool.UnderlyingDecimals)

	position := model.Position{
		UserID:           userID,
		PoolAddress:      pool.PoolAddress,
		ChainID:          pool.ChainID,
		Shares:           shares.String(),
		DepositedAmount:  deposited,
		CurrentValue:     deposited,
		InitialSupplyAPY: pool.SupplyAPY,
		CurrentSupplyAPY: pool.SupplyAPY,
		InitialBorrowAPY: pool.BorrowAPY,
		CurrentBorrowAPY: pool.BorrowAPY,
		NetAPY:           pool.SupplyAPY,
		Leverage:         1,
		DepositedAt:      now,
		LastUpdatedAt:    now,
	}

	existing, err := o.store.GetPosition(ctx, userID, pool.PoolAddress, pool.ChainID)
	switch {
	case err == nil:
		total := new(big.Int).Set(shares)
		if prev, ok := new(big.Int).SetString(existing.Shares, 10); ok {
			total.Add(total, prev)
		}
		position.Shares = total.String()
		position.DepositedAmount = existing.DepositedAmount + deposited
		position.CurrentValue = existing.CurrentValue + deposited
		position.InitialSupplyAPY = existing.InitialSupplyAPY
		position.InitialBorrowAPY = existing.InitialBorrowAPY
		position.Leverage = existing.Leverage
		position.HealthFactor = existing.HealthFactor
		position.DepositedAt = existing.DepositedAt
	case errors.Is(err, storage.ErrNotFound):
		// First deposit creates the row.
	default:
		return err
	}

	return o.store.UpsertPosition(ctx, position)
}

// recordWithdraw reduces the position after a confirmed redemption.
func (o *Orchestrator) recordWithdraw(ctx context.Context, userID string, pool model.Pool, shares, assets *big.Int) error {
	existing, err := o.store.GetPosition(ctx, userID, pool.PoolAddress, pool.ChainID)
	if err != nil {
		return err
	}

	remaining := new(big.Int)
	if prev, ok := new(big.Int).SetString(existing.Shares, 10); ok {
		remaining.Sub(prev, shares)
		if remaining.Sign() < 0 {
			remaining.SetInt64(0)
		}
	}

	withdrawn := units.FromWei(assets, pool.UnderlyingDecimals)
	existing.Shares = remaining.String()
	existing.CurrentValue = existing.CurrentValue - withdrawn
	if existing.CurrentValue < 0 {
		existing.CurrentValue = 0
	}
	existing.CurrentSupplyAPY = pool.SupplyAPY
	existing.CurrentBorrowAPY = pool.BorrowAPY
	existing.LastUpdatedAt = time.Now().UTC()

	return o.store.UpsertPosition(ctx, existing)
}

func (o *Orchestrator) appendJournal(tx model.PendingTransaction, detail string) {
	if o.journal == nil {
		return
	}
	entry := storage.JournalEntry{
		At:          time.Now().UTC(),
		AttemptID:   tx.AttemptID,
		UserID:      tx.UserID,
		ChainID:     tx.ChainID,
		PoolAddress: tx.PoolAddress,
		TxHash:      tx.TxHash,
		TxType:      tx.TxType,
		Status:      tx.Status,
		Detail:      detail,
	}
	if err := o.journal.Append(entry); err != nil {
		o.logger.Warn("journal append failed", zap.Error(err))
	}
}
