package nosana_protocol

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitTxZeroTriesTimesOutSynchronously(t *testing.T) {
	// With a polling budget of zero the call must return ErrTimeout
	// without ever touching the network.
	client, err := NewClient("http://127.0.0.1:1", solana.NewWallet().PrivateKey, NetworkDevnet)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.AwaitTx(context.Background(), solana.Signature{}, time.Second, 0)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestBuildInstruction(t *testing.T) {
	idl, err := ParseIDL([]byte(jobsIdlJSON))
	require.NoError(t, err)

	program := ProgramsFor(NetworkMainnet).Jobs
	accounts := map[string]solana.PublicKey{
		"job":          solana.NewWallet().PublicKey(),
		"run":          solana.NewWallet().PublicKey(),
		"market":       solana.NewWallet().PublicKey(),
		"vault":        solana.NewWallet().PublicKey(),
		"user":         solana.NewWallet().PublicKey(),
		"payer":        solana.NewWallet().PublicKey(),
		"authority":    solana.NewWallet().PublicKey(),
		"tokenProgram": solana.TokenProgramID,
	}

	digest := make([]byte, 32)
	digest[0] = 0xAB
	instruction, err := BuildInstruction(idl, program, "finish", []interface{}{digest}, accounts)
	require.NoError(t, err)

	assert.Equal(t, program, instruction.ProgramID())

	data, err := instruction.Data()
	require.NoError(t, err)
	disc := MethodDiscriminator("finish")
	assert.Equal(t, disc[:], data[:8])
	assert.Equal(t, digest, data[8:])

	metas := instruction.Accounts()
	require.Len(t, metas, 8)
	assert.Equal(t, accounts["job"], metas[0].PublicKey)
}

func TestBuildInstructionMissingAccountNoIO(t *testing.T) {
	idl, err := ParseIDL([]byte(jobsIdlJSON))
	require.NoError(t, err)

	_, err = BuildInstruction(idl, ProgramsFor(NetworkMainnet).Jobs, "finish",
		[]interface{}{make([]byte, 32)},
		map[string]solana.PublicKey{"job": solana.NewWallet().PublicKey()})
	assert.ErrorIs(t, err, ErrMissingAccount)
}
