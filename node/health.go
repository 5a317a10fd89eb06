package node

import (
	"context"
	"fmt"
)

// MinimumSolBalance is the smallest SOL balance (in lamports) the worker
// can operate with; below it, transactions would start failing on fees.
const MinimumSolBalance uint64 = 100_000_000

// Health is the startup report gating the work loop.
type Health struct {
	Sol uint64
	Nos uint64
	Nft uint64

	Problems []string
}

// Ok reports whether the node may start working. A failed health check is
// advisory: it keeps the loop off but never kills the process.
func (h *Health) Ok() bool {
	return len(h.Problems) == 0
}

// CheckHealth reads the node's SOL balance, staked-token balance and
// access-NFT ownership, and verifies the secrets credential.
func (n *Node) CheckHealth(ctx context.Context) (*Health, error) {
	sol, err := n.Chain.GetBalance(ctx, n.Config.Address)
	if err != nil {
		return nil, fmt.Errorf("health check failed to read SOL balance: %w", err)
	}
	nos, err := n.Chain.GetTokenBalance(ctx, n.Config.Address, n.Config.Programs.Mint)
	if err != nil {
		return nil, fmt.Errorf("health check failed to read NOS balance: %w", err)
	}
	nft, err := n.Chain.GetTokenBalance(ctx, n.Config.Address, n.Config.NftMint)
	if err != nil {
		return nil, fmt.Errorf("health check failed to read NFT balance: %w", err)
	}

	health := &Health{Sol: sol, Nos: nos, Nft: nft}
	if sol < MinimumSolBalance {
		health.Problems = append(health.Problems,
			fmt.Sprintf("SOL balance %d below minimum %d", sol, MinimumSolBalance))
	}
	if nft < 1 {
		health.Problems = append(health.Problems, "node holds no access NFT")
	}
	if n.Secrets != nil {
		if err := n.Secrets.Login(ctx, ""); err != nil {
			health.Problems = append(health.Problems,
				fmt.Sprintf("secrets login failed: %v", err))
		}
	}
	return health, nil
}
