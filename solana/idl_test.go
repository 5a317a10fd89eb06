package nosana_protocol

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsIdlJSON = `{
  "version": "0.1.0",
  "name": "nosana_jobs",
  "instructions": [
    {
      "name": "work",
      "accounts": [
        {"name": "run", "isMut": true, "isSigner": true},
        {"name": "market", "isMut": true, "isSigner": false},
        {"name": "payer", "isMut": true, "isSigner": true},
        {"name": "stake", "isMut": false, "isSigner": false},
        {"name": "nft", "isMut": false, "isSigner": false},
        {"name": "metadata", "isMut": false, "isSigner": false},
        {"name": "authority", "isMut": true, "isSigner": true},
        {"name": "systemProgram", "isMut": false, "isSigner": false}
      ],
      "args": []
    },
    {
      "name": "finish",
      "accounts": [
        {"name": "job", "isMut": true, "isSigner": false},
        {"name": "run", "isMut": true, "isSigner": false},
        {"name": "market", "isMut": false, "isSigner": false},
        {"name": "vault", "isMut": true, "isSigner": false},
        {"name": "user", "isMut": true, "isSigner": false},
        {"name": "payer", "isMut": true, "isSigner": false},
        {"name": "authority", "isMut": true, "isSigner": true},
        {"name": "tokenProgram", "isMut": false, "isSigner": false}
      ],
      "args": [
        {"name": "ipfsResult", "type": {"array": ["u8", 32]}}
      ]
    }
  ],
  "accounts": [
    {
      "name": "MarketAccount",
      "type": {
        "kind": "struct",
        "fields": [
          {"name": "authority", "type": "publicKey"},
          {"name": "jobExpiration", "type": "i64"},
          {"name": "jobPrice", "type": "u64"},
          {"name": "jobTimeout", "type": "i64"},
          {"name": "jobType", "type": "u8"},
          {"name": "vault", "type": "publicKey"},
          {"name": "vaultBump", "type": "u8"},
          {"name": "nodeAccessKey", "type": "publicKey"},
          {"name": "nodeXnosMinimum", "type": "u64"},
          {"name": "queueType", "type": "u8"},
          {"name": "queue", "type": {"vec": "publicKey"}}
        ]
      }
    },
    {
      "name": "RunAccount",
      "type": {
        "kind": "struct",
        "fields": [
          {"name": "job", "type": "publicKey"},
          {"name": "node", "type": "publicKey"},
          {"name": "payer", "type": "publicKey"},
          {"name": "state", "type": "u8"},
          {"name": "time", "type": "i64"}
        ]
      }
    }
  ]
}`

func TestParseIDL(t *testing.T) {
	idl, err := ParseIDL([]byte(jobsIdlJSON))
	require.NoError(t, err)

	assert.Equal(t, "nosana_jobs", idl.Name)

	work, err := idl.Instruction("work")
	require.NoError(t, err)
	assert.Empty(t, work.Args)
	assert.Len(t, work.Accounts, 8)
	assert.True(t, work.Accounts[0].IsSigner)

	finish, err := idl.Instruction("finish")
	require.NoError(t, err)
	require.Len(t, finish.Args, 1)
	require.NotNil(t, finish.Args[0].Type.Array)
	assert.Equal(t, "u8", finish.Args[0].Type.Array.Primitive)
	assert.Equal(t, 32, finish.Args[0].Type.ArrayLen)

	market, err := idl.Account("MarketAccount")
	require.NoError(t, err)
	queue := market.Type.Fields[len(market.Type.Fields)-1]
	require.NotNil(t, queue.Type.Vec)
	assert.Equal(t, "publicKey", queue.Type.Vec.Primitive)

	_, err = idl.Instruction("nope")
	assert.Error(t, err)
}

func TestIdlAccountRoundTrip(t *testing.T) {
	idl, err := ParseIDL([]byte(jobsIdlJSON))
	require.NoError(t, err)

	authority := solana.NewWallet().PublicKey()
	blob, err := EncodeIdlAccount(idl, authority)
	require.NoError(t, err)

	decoded, err := DecodeIdlAccount(blob)
	require.NoError(t, err)
	assert.Equal(t, idl.Name, decoded.Name)
	assert.Len(t, decoded.Instructions, len(idl.Instructions))
	assert.Len(t, decoded.Accounts, len(idl.Accounts))
}

func TestGetIdlServedFromCache(t *testing.T) {
	// Once cached, GetIdl must not issue another RPC round trip: the
	// endpoint here is unreachable, so a network attempt would error.
	client, err := NewClient("http://127.0.0.1:1", solana.NewWallet().PrivateKey, NetworkDevnet)
	require.NoError(t, err)

	idl, err := ParseIDL([]byte(jobsIdlJSON))
	require.NoError(t, err)

	program := ProgramsFor(NetworkDevnet).Jobs
	client.idls.idls[idlCacheKey(program, client.Network)] = idl

	got, err := client.GetIdl(t.Context(), program)
	require.NoError(t, err)
	assert.Equal(t, idl, got)

	again, err := client.GetIdl(t.Context(), program)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestDecodeIdlAccountEmpty(t *testing.T) {
	_, err := DecodeIdlAccount(nil)
	assert.ErrorIs(t, err, ErrIdlUnavailable)

	_, err = DecodeIdlAccount(make([]byte, idlHeaderLen))
	assert.ErrorIs(t, err, ErrIdlUnavailable)
}
