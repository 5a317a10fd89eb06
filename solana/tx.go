package nosana_protocol

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimeout is returned when AwaitTx exhausts its polling budget.
	ErrTimeout = errors.New("timed out awaiting transaction")

	// ErrTxFailed is returned when a confirmed transaction carries a
	// non-null meta error.
	ErrTxFailed = errors.New("transaction failed")
)

const (
	defaultPollInterval = time.Second
	defaultMaxTries     = 30
)

// BuildInstruction encodes an instruction call against an IDL: 8-byte
// method discriminator plus packed args, with the ordered account-meta list
// resolved through the accounts table. Pure; performs no network I/O.
func BuildInstruction(idl *IDL, program solana.PublicKey, name string, args []interface{}, accounts map[string]solana.PublicKey) (solana.Instruction, error) {
	ix, err := idl.Instruction(name)
	if err != nil {
		return nil, err
	}
	metas, err := BuildAccountMetas(ix, accounts)
	if err != nil {
		return nil, err
	}
	data, err := EncodeInstructionData(ix, args)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(program, metas, data), nil
}

// BuildIdlTx assembles an unsigned transaction containing a single
// IDL-encoded instruction, against a fresh blockhash.
func (c *Client) BuildIdlTx(ctx context.Context, program solana.PublicKey, name string, args []interface{}, accounts map[string]solana.PublicKey) (*solana.Transaction, error) {
	idl, err := c.GetIdl(ctx, program)
	if err != nil {
		return nil, err
	}
	instruction, err := BuildInstruction(idl, program, name, args, accounts)
	if err != nil {
		return nil, err
	}

	latest, err := c.Rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		latest.Value.Blockhash,
		solana.TransactionPayer(c.Signer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// SendTx signs a transaction with the client signer plus any extra keypairs
// (fresh run/job accounts) and submits it.
func (c *Client) SendTx(ctx context.Context, tx *solana.Transaction, extraSigners ...solana.PrivateKey) (solana.Signature, error) {
	keys := append([]solana.PrivateKey{c.Signer}, extraSigners...)

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(key) {
				return &keys[i]
			}
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := c.Rpc.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// AwaitTx polls getTransaction until the transaction is finalized or the
// polling budget runs out. The total wait is bounded by poll * maxTries;
// maxTries = 0 returns ErrTimeout without touching the network.
func (c *Client) AwaitTx(ctx context.Context, sig solana.Signature, poll time.Duration, maxTries int) (*rpc.GetTransactionResult, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}

	version := uint64(0)
	for try := 0; try < maxTries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(poll):
			}
		}

		logrus.Tracef("polling transaction %s (try %d/%d)", sig, try+1, maxTries)
		result, err := c.Rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &version,
		})
		if err != nil {
			if errors.Is(err, rpc.ErrNotFound) {
				continue
			}
			logrus.WithError(err).Tracef("transient error polling transaction %s", sig)
			continue
		}
		if result == nil {
			continue
		}
		if result.Meta != nil && result.Meta.Err != nil {
			return result, fmt.Errorf("%w: %v", ErrTxFailed, result.Meta.Err)
		}
		return result, nil
	}
	return nil, ErrTimeout
}
