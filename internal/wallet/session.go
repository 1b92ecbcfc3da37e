package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"leverscope/internal/model"
)

// Session is an established wallet-signing session for one user. The session
// protocol itself (QR/deep-link pairing) lives outside this module; only the
// request/response contract is consumed here.
type Session struct {
	UserID           string
	WalletAddress    common.Address
	ChainsAuthorized []uint64
	EstablishedAt    time.Time
	ExpiresAt        time.Time
}

// Authorized reports whether the session covers a chain id.
func (s Session) Authorized(chainID uint64) bool {
	for _, id := range s.ChainsAuthorized {
		if id == chainID {
			return true
		}
	}
	return false
}

// Expired reports whether the session has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Sessions is the wallet-session collaborator. Implementations never expose
// private keys; SendTransaction hands the request to the user's wallet and
// returns the submitted hash.
type Sessions interface {
	// ActiveSession returns the user's current session, or ok=false when none
	// is established or the session has expired.
	ActiveSession(ctx context.Context, userID string) (Session, bool, error)
	// SendTransaction asks the wallet to sign and submit the request on the
	// given chain.
	SendTransaction(ctx context.Context, userID string, chainID uint64, tx model.TxRequest) (common.Hash, error)
	// RequestChain asks the wallet to authorize an additional chain.
	// Best-effort: a wallet may reject or ignore it.
	RequestChain(ctx context.Context, userID string, chainID uint64) error
	// Disconnect tears the session down.
	Disconnect(ctx context.Context, userID string) error
}
