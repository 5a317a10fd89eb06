package nosana_protocol

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPDADeterministic(t *testing.T) {
	programs := ProgramsFor(NetworkMainnet)
	owner := solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	seeds := [][]byte{[]byte("stake"), programs.Mint.Bytes(), owner.Bytes()}

	addr1, bump1, err := FindPDA(seeds, programs.Stake)
	require.NoError(t, err)
	addr2, bump2, err := FindPDA(seeds, programs.Stake)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.Equal(t, bump1, bump2)
	// A PDA must not be a valid curve point.
	assert.False(t, addr1.IsOnCurve())
}

func TestIdlAddressDeterministic(t *testing.T) {
	programs := ProgramsFor(NetworkMainnet)

	addr1, err := IdlAddress(programs.Jobs)
	require.NoError(t, err)
	addr2, err := IdlAddress(programs.Jobs)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2)
	assert.False(t, addr1.IsZero())

	other, err := IdlAddress(programs.Stake)
	require.NoError(t, err)
	assert.NotEqual(t, addr1, other)
}

func TestFindATA(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := ProgramsFor(NetworkMainnet).Mint

	ata1, err := FindATA(owner, mint)
	require.NoError(t, err)
	ata2, err := FindATA(owner, mint)
	require.NoError(t, err)

	assert.Equal(t, ata1, ata2)
	assert.NotEqual(t, owner, ata1)
}

func TestSignMessage(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	sig, err := SignMessage(key, []byte("nosana_secret_1700000000"))
	require.NoError(t, err)
	assert.Len(t, sig[:], 64)
}

func TestDeriveNodeConfig(t *testing.T) {
	signer := solana.NewWallet().PrivateKey
	dummy := solana.NewWallet().PrivateKey
	market := solana.NewWallet().PublicKey()
	nft := solana.NewWallet().PublicKey()
	collection := solana.NewWallet().PublicKey()

	cfg, err := DeriveNodeConfig(signer, dummy, market, nft, collection, NetworkMainnet)
	require.NoError(t, err)

	assert.Equal(t, signer.PublicKey(), cfg.Address)
	assert.False(t, cfg.Stake.IsOnCurve())
	assert.False(t, cfg.MarketVault.IsOnCurve())

	// The fixed table resolves the names every jobs instruction asks for.
	for _, name := range []string{
		"authority", "payer", "market", "mint", "vault", "stake", "nft",
		"metadata", "accessKey", "rewardsProgram", "rewardsVault",
		"rewardsReflection", "systemProgram", "tokenProgram", "rent",
	} {
		_, ok := cfg.Accounts[name]
		assert.True(t, ok, name)
	}

	// Overrides shadow the table without mutating it.
	run := solana.NewWallet().PublicKey()
	merged := cfg.InstructionAccounts(map[string]solana.PublicKey{"run": run})
	assert.Equal(t, run, merged["run"])
	assert.Equal(t, dummy.PublicKey(), cfg.Accounts["run"])
}
