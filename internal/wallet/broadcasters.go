package wallet

import (
	"leverscope/internal/chain"
)

type chainBroadcasters struct {
	registry *chain.Registry
}

// NewChainBroadcasters adapts the chain client registry to the signer's
// per-chain broadcaster lookup.
func NewChainBroadcasters(registry *chain.Registry) BroadcasterSource {
	return &chainBroadcasters{registry: registry}
}

func (b *chainBroadcasters) Broadcaster(chainID uint64) (Broadcaster, error) {
	return b.registry.Client(chainID)
}
