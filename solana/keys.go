package nosana_protocol

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

// ErrNoValidBump is returned when no bump seed yields an off-curve address.
var ErrNoValidBump = errors.New("no valid bump")

// FindPDA derives a program-derived address from a list of byte seeds.
// The derivation appends a one-byte bump (255 down to 0) and accepts the
// first sha256 of seeds | bump | program | "ProgramDerivedAddress" that is
// not a valid ed25519 curve point. Returns the address and the bump used.
func FindPDA(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w for PDA under %s: %w", ErrNoValidBump, program, err)
	}
	return addr, bump, nil
}

// FindATA returns the canonical associated token account for (owner, mint):
// pda([owner, token_program, mint]) under the associated-token program.
func FindATA(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to find associated token address: %w", err)
	}
	return ata, nil
}

// FindMetadataPDA returns the Metaplex metadata account for a mint:
// pda(["metadata", metaplex_program, mint]) under the metaplex program.
func FindMetadataPDA(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			solana.TokenMetadataProgramID.Bytes(),
			mint.Bytes(),
		},
		solana.TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata PDA: %w", err)
	}
	return addr, nil
}

// IdlAddress returns the deterministic account address where Anchor stores
// a program's IDL: sha256(base | "anchor:idl" | program) with base the
// program's empty-seed PDA.
func IdlAddress(program solana.PublicKey) (solana.PublicKey, error) {
	base, _, err := solana.FindProgramAddress([][]byte{}, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive IDL base address: %w", err)
	}
	addr, err := solana.CreateWithSeed(base, "anchor:idl", program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive IDL address: %w", err)
	}
	return addr, nil
}

// SignMessage signs an arbitrary message with the given key and returns the
// 64-byte ed25519 signature.
func SignMessage(key solana.PrivateKey, msg []byte) (solana.Signature, error) {
	sig, err := key.Sign(msg)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}
