package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"leverscope/internal/model"
)

type fakeBroadcaster struct {
	sent  []*types.Transaction
	nonce uint64
}

func (f *fakeBroadcaster) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBroadcaster) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (f *fakeBroadcaster) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 60_000, nil
}

func (f *fakeBroadcaster) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

type singleChain struct {
	chainID     uint64
	broadcaster *fakeBroadcaster
}

func (s *singleChain) Broadcaster(chainID uint64) (Broadcaster, error) {
	if chainID != s.chainID {
		return nil, errors.New("unknown chain")
	}
	return s.broadcaster, nil
}

func newTestSigner(t *testing.T, chainID uint64) (*LocalSigner, *fakeBroadcaster, *SessionStore) {
	t.Helper()
	store := NewSessionStore(time.Hour, nil)
	t.Cleanup(store.Close)
	broadcaster := &fakeBroadcaster{nonce: 7}
	signer := NewLocalSigner(store, &singleChain{chainID: chainID, broadcaster: broadcaster}, nil)
	return signer, broadcaster, store
}

func TestLocalSignerSendsSignedTransaction(t *testing.T) {
	signer, broadcaster, _ := newTestSigner(t, 1)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	session, err := signer.Connect("u1", key, []uint64{1})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	hash, err := signer.SendTransaction(context.Background(), "u1", 1, model.TxRequest{
		To:   to,
		Data: []byte{0x01, 0x02},
	})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}

	if len(broadcaster.sent) != 1 {
		t.Fatalf("broadcast %d transactions, want 1", len(broadcaster.sent))
	}
	sent := broadcaster.sent[0]
	if sent.Hash() != hash {
		t.Fatalf("returned hash %s != broadcast hash %s", hash, sent.Hash())
	}
	if sent.Nonce() != 7 {
		t.Fatalf("nonce = %d, want 7", sent.Nonce())
	}

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), sent)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != session.WalletAddress {
		t.Fatalf("sender %s != session wallet %s", sender, session.WalletAddress)
	}
}

func TestLocalSignerRejectsUnauthorizedChain(t *testing.T) {
	signer, broadcaster, _ := newTestSigner(t, 10)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := signer.Connect("u1", key, []uint64{1}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := signer.SendTransaction(context.Background(), "u1", 10, model.TxRequest{}); err == nil {
		t.Fatal("want error for unauthorized chain")
	}
	if len(broadcaster.sent) != 0 {
		t.Fatal("must not broadcast on unauthorized chain")
	}

	// RequestChain grants any chain the client source can reach.
	if err := signer.RequestChain(context.Background(), "u1", 10); err != nil {
		t.Fatalf("RequestChain: %v", err)
	}
	session, ok, err := signer.ActiveSession(context.Background(), "u1")
	if err != nil || !ok {
		t.Fatalf("session lost: ok=%v err=%v", ok, err)
	}
	if !session.Authorized(10) {
		t.Fatal("chain 10 not authorized after RequestChain")
	}

	if err := signer.RequestChain(context.Background(), "u1", 99); err == nil {
		t.Fatal("want error for unreachable chain")
	}
}

func TestLocalSignerWithoutSession(t *testing.T) {
	signer, _, _ := newTestSigner(t, 1)

	if _, err := signer.SendTransaction(context.Background(), "ghost", 1, model.TxRequest{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	if err := signer.RequestChain(context.Background(), "ghost", 1); !errors.Is(err, ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}
