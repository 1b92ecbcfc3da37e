package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestSessionStoreTTL(t *testing.T) {
	store := NewSessionStore(time.Hour, nil)
	defer store.Close()

	current := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Put(Session{
		UserID:           "user-1",
		WalletAddress:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		ChainsAuthorized: []uint64{1, 42161},
	})

	session, ok, err := store.ActiveSession(context.Background(), "user-1")
	if err != nil || !ok {
		t.Fatalf("session missing: ok=%v err=%v", ok, err)
	}
	if !session.Authorized(42161) {
		t.Fatalf("chain 42161 should be authorized")
	}
	if session.Authorized(10) {
		t.Fatalf("chain 10 should not be authorized")
	}

	// Advance past the TTL; the read must evict.
	current = current.Add(2 * time.Hour)
	if _, ok, _ := store.ActiveSession(context.Background(), "user-1"); ok {
		t.Fatalf("expired session still active")
	}
}

func TestSessionStoreDisconnect(t *testing.T) {
	store := NewSessionStore(time.Hour, nil)
	defer store.Close()

	store.Put(Session{UserID: "user-1"})
	if err := store.Disconnect(context.Background(), "user-1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if _, ok, _ := store.ActiveSession(context.Background(), "user-1"); ok {
		t.Fatalf("session survived disconnect")
	}
}

func TestSessionStoreUnknownUser(t *testing.T) {
	store := NewSessionStore(time.Hour, nil)
	defer store.Close()

	if _, ok, err := store.ActiveSession(context.Background(), "nobody"); ok || err != nil {
		t.Fatalf("unexpected session: ok=%v err=%v", ok, err)
	}
}
