package nosana_protocol

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Network selects the Solana cluster the node operates against.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
)

// DefaultRpcEndpoint returns the public RPC endpoint for a network.
func DefaultRpcEndpoint(network Network) string {
	if network == NetworkDevnet {
		return "https://api.devnet.solana.com"
	}
	return "https://api.mainnet-beta.solana.com"
}

// Programs holds the program and token addresses the worker interacts with.
// Nosana deploys its programs under the same IDs on mainnet and devnet; the
// clusters differ in RPC endpoint and in the operator-supplied market, NFT
// and collection keys.
type Programs struct {
	Mint    solana.PublicKey // NOS token mint
	Jobs    solana.PublicKey // jobs / market program
	Stake   solana.PublicKey // staking program
	Rewards solana.PublicKey // rewards program
}

var nosanaPrograms = Programs{
	Mint:    solana.MustPublicKeyFromBase58("nosXBVoaCTtYdLvKY6Csb4AC8JCdQKKAaWYtx2ZMoo7"),
	Jobs:    solana.MustPublicKeyFromBase58("nosJhNRqr2bc9g1nfGDcXXTXvYUmxD4cVwy2pMWhrYM"),
	Stake:   solana.MustPublicKeyFromBase58("nosScmHY2uR24Zh751PmGj9ww9QRNHewh9H59AfrTJE"),
	Rewards: solana.MustPublicKeyFromBase58("nosRB8DUV67oLNrL45bo2pFLrmsWPiewe2Lk2DRNYCp"),
}

// ProgramsFor returns the program set for a network.
func ProgramsFor(network Network) Programs {
	return nosanaPrograms
}

// NodeConfig is the pure derivation of every address the node needs, fixed
// once at startup. The Accounts table is the single source of truth handed
// to every IDL-built instruction; callers override individual entries per
// call (run keypair for "work", job/run/payer for "finish").
type NodeConfig struct {
	Signer   solana.PrivateKey
	Address  solana.PublicKey
	Market   solana.PublicKey
	Network  Network
	Programs Programs

	NftMint    solana.PublicKey
	Collection solana.PublicKey
	Dummy      solana.PrivateKey

	NosAta            solana.PublicKey
	NftAta            solana.PublicKey
	Stake             solana.PublicKey
	MarketVault       solana.PublicKey
	RewardsVault      solana.PublicKey
	RewardsReflection solana.PublicKey

	Accounts map[string]solana.PublicKey
}

// DeriveNodeConfig computes the node configuration from the signer key, the
// operator-selected market and the network's program set.
func DeriveNodeConfig(
	signer solana.PrivateKey,
	dummy solana.PrivateKey,
	market solana.PublicKey,
	nftMint solana.PublicKey,
	collection solana.PublicKey,
	network Network,
) (*NodeConfig, error) {
	programs := ProgramsFor(network)
	address := signer.PublicKey()

	nosAta, err := FindATA(address, programs.Mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive NOS token account: %w", err)
	}
	nftAta, err := FindATA(address, nftMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive NFT token account: %w", err)
	}
	stake, _, err := FindPDA(
		[][]byte{[]byte("stake"), programs.Mint.Bytes(), address.Bytes()},
		programs.Stake,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive stake PDA: %w", err)
	}
	marketVault, _, err := FindPDA(
		[][]byte{market.Bytes(), programs.Mint.Bytes()},
		programs.Jobs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive market vault PDA: %w", err)
	}
	rewardsVault, _, err := FindPDA(
		[][]byte{programs.Mint.Bytes()},
		programs.Rewards,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive rewards vault PDA: %w", err)
	}
	reflection, _, err := FindPDA(
		[][]byte{[]byte("reflection")},
		programs.Rewards,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive rewards reflection PDA: %w", err)
	}
	metadata, err := FindMetadataPDA(nftMint)
	if err != nil {
		return nil, err
	}

	cfg := &NodeConfig{
		Signer:            signer,
		Address:           address,
		Market:            market,
		Network:           network,
		Programs:          programs,
		NftMint:           nftMint,
		Collection:        collection,
		Dummy:             dummy,
		NosAta:            nosAta,
		NftAta:            nftAta,
		Stake:             stake,
		MarketVault:       marketVault,
		RewardsVault:      rewardsVault,
		RewardsReflection: reflection,
	}

	cfg.Accounts = map[string]solana.PublicKey{
		"systemProgram":          solana.SystemProgramID,
		"tokenProgram":           solana.TokenProgramID,
		"associatedTokenProgram": AssociatedTokenProgramID,
		"rent":                   solana.SysVarRentPubkey,
		"authority":              address,
		"payer":                  address,
		"market":                 market,
		"mint":                   programs.Mint,
		"vault":                  marketVault,
		"stake":                  stake,
		"nft":                    nftAta,
		"metadata":               metadata,
		"accessKey":              collection,
		"user":                   nosAta,
		"nos":                    nosAta,
		"rewardsProgram":         programs.Rewards,
		"rewardsVault":           rewardsVault,
		"rewardsReflection":      reflection,
		"run":                    dummy.PublicKey(),
		"job":                    dummy.PublicKey(),
		"deposit":                nosAta,
	}
	return cfg, nil
}

// InstructionAccounts merges per-call overrides over the fixed table
// without mutating it.
func (cfg *NodeConfig) InstructionAccounts(overrides map[string]solana.PublicKey) map[string]solana.PublicKey {
	merged := make(map[string]solana.PublicKey, len(cfg.Accounts)+len(overrides))
	for name, pk := range cfg.Accounts {
		merged[name] = pk
	}
	for name, pk := range overrides {
		merged[name] = pk
	}
	return merged
}
