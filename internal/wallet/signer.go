package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"leverscope/internal/model"
)

// ErrNoSession is returned when a signing operation has no established
// session to act on.
var ErrNoSession = errors.New("no wallet session")

// Broadcaster is the chain access the signer needs to submit transactions.
type Broadcaster interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// BroadcasterSource resolves a Broadcaster per chain.
type BroadcasterSource interface {
	Broadcaster(chainID uint64) (Broadcaster, error)
}

// LocalSigner implements Sessions with in-process keys: it signs and
// broadcasts directly instead of handing requests to an external wallet.
// For development and tests; keys never leave the process but also never
// survive it.
type LocalSigner struct {
	store   *SessionStore
	clients BroadcasterSource
	logger  *zap.Logger

	mu   sync.Mutex
	keys map[string]*ecdsa.PrivateKey
}

func NewLocalSigner(store *SessionStore, clients BroadcasterSource, logger *zap.Logger) *LocalSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalSigner{
		store:   store,
		clients: clients,
		logger:  logger,
		keys:    make(map[string]*ecdsa.PrivateKey),
	}
}

// Connect establishes a session for the key, authorized on the given chains.
func (s *LocalSigner) Connect(userID string, key *ecdsa.PrivateKey, chains []uint64) (Session, error) {
	if key == nil {
		return Session{}, fmt.Errorf("private key is required")
	}

	session := Session{
		UserID:           userID,
		WalletAddress:    crypto.PubkeyToAddress(key.PublicKey),
		ChainsAuthorized: append([]uint64(nil), chains...),
	}

	s.mu.Lock()
	s.keys[userID] = key
	s.mu.Unlock()
	s.store.Put(session)

	current, ok, err := s.store.ActiveSession(context.Background(), userID)
	if err != nil || !ok {
		return session, err
	}
	return current, nil
}

// ConnectHex is Connect for a hex-encoded private key.
func (s *LocalSigner) ConnectHex(userID, hexKey string, chains []uint64) (Session, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return Session{}, fmt.Errorf("parse private key: %w", err)
	}
	return s.Connect(userID, key, chains)
}

func (s *LocalSigner) ActiveSession(ctx context.Context, userID string) (Session, bool, error) {
	return s.store.ActiveSession(ctx, userID)
}

// RequestChain authorizes an additional chain on the session. The local
// signer grants any chain its client source can reach.
func (s *LocalSigner) RequestChain(ctx context.Context, userID string, chainID uint64) error {
	session, ok, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSession
	}
	if session.Authorized(chainID) {
		return nil
	}
	if _, err := s.clients.Broadcaster(chainID); err != nil {
		return err
	}
	session.ChainsAuthorized = append(session.ChainsAuthorized, chainID)
	s.store.Put(session)
	return nil
}

// SendTransaction signs the request with the user's key and broadcasts it.
func (s *LocalSigner) SendTransaction(ctx context.Context, userID string, chainID uint64, tx model.TxRequest) (common.Hash, error) {
	session, ok, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return common.Hash{}, err
	}
	if !ok {
		return common.Hash{}, ErrNoSession
	}
	if !session.Authorized(chainID) {
		return common.Hash{}, fmt.Errorf("chain %d not authorized for session", chainID)
	}

	s.mu.Lock()
	key, hasKey := s.keys[userID]
	s.mu.Unlock()
	if !hasKey {
		return common.Hash{}, ErrNoSession
	}

	client, err := s.clients.Broadcaster(chainID)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := client.PendingNonceAt(ctx, session.WalletAddress)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
		}
	}

	gasLimit := tx.GasLimit
	if gasLimit == 0 {
		gasLimit, err = client.EstimateGas(ctx, ethereum.CallMsg{
			From:  session.WalletAddress,
			To:    &tx.To,
			Value: value,
			Data:  tx.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	signed, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &tx.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     tx.Data,
	}), types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}

	s.logger.Info("transaction broadcast",
		zap.String("user_id", userID),
		zap.Uint64("chain_id", chainID),
		zap.String("tx_hash", signed.Hash().Hex()))
	return signed.Hash(), nil
}

// Disconnect drops the session and wipes the key reference.
func (s *LocalSigner) Disconnect(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.keys, userID)
	s.mu.Unlock()
	return s.store.Disconnect(ctx, userID)
}
