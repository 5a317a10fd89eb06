package nosana_protocol

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// Client talks to a Solana cluster on behalf of the worker. It carries no
// state beyond the endpoint, the signer and the IDL cache; no retries
// happen at this layer.
type Client struct {
	Rpc     *rpc.Client
	Signer  solana.PrivateKey
	Network Network

	idls *idlCache
}

// NewClient creates a new Client bound to a specific signer.
func NewClient(rpcEndpoint string, signer solana.PrivateKey, network Network) (*Client, error) {
	if len(signer) == 0 {
		return nil, fmt.Errorf("client requires a signer key")
	}
	return &Client{
		Rpc:     rpc.New(rpcEndpoint),
		Signer:  signer,
		Network: network,
		idls:    newIdlCache(),
	}, nil
}

// GetBalance retrieves the SOL balance in lamports for a given public key.
func (c *Client) GetBalance(ctx context.Context, publicKey solana.PublicKey) (uint64, error) {
	balance, err := c.Rpc.GetBalance(ctx, publicKey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Value, nil
}

// GetTokenBalance retrieves the balance of the associated token account for
// (owner, mint). A missing account means a balance of 0.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error) {
	ata, err := FindATA(owner, mint)
	if err != nil {
		return 0, err
	}

	balance, err := c.Rpc.GetTokenAccountBalance(ctx, ata, rpc.CommitmentConfirmed)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get token account balance for %s: %w", ata, err)
	}
	if balance.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(balance.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount string: %w", err)
	}
	return amount, nil
}

// GetAccountData fetches the raw data of an account, base64-encoded on the
// wire. Returns rpc.ErrNotFound when the account does not exist.
func (c *Client) GetAccountData(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	resp, err := c.Rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, err
	}
	if resp.Value == nil {
		return nil, rpc.ErrNotFound
	}
	return resp.Value.Data.GetBinary(), nil
}

// FetchAccount fetches an account and decodes it through the program's IDL
// as the named account type.
func (c *Client) FetchAccount(ctx context.Context, program solana.PublicKey, typeName string, address solana.PublicKey) (map[string]interface{}, error) {
	idl, err := c.GetIdl(ctx, program)
	if err != nil {
		return nil, err
	}
	def, err := idl.Account(typeName)
	if err != nil {
		return nil, err
	}
	data, err := c.GetAccountData(ctx, address)
	if err != nil {
		return nil, err
	}
	return DecodeAccount(def, data)
}

// ProgramAccount is a decoded program-owned account together with its address.
type ProgramAccount struct {
	Pubkey solana.PublicKey
	Fields map[string]interface{}
}

// FindProgramAccounts scans all accounts of the named type under a program,
// keeping those whose fields equal the given literal values. Filters are
// translated to memcmp constraints at IDL-computed offsets before any RPC
// call is issued.
func (c *Client) FindProgramAccounts(ctx context.Context, program solana.PublicKey, typeName string, fieldEq map[string]interface{}) ([]ProgramAccount, error) {
	idl, err := c.GetIdl(ctx, program)
	if err != nil {
		return nil, err
	}
	def, err := idl.Account(typeName)
	if err != nil {
		return nil, err
	}
	filters, err := AccountFilters(def, fieldEq)
	if err != nil {
		return nil, err
	}

	resp, err := c.Rpc.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Filters:    filters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get program accounts: %w", err)
	}

	accounts := make([]ProgramAccount, 0, len(resp))
	for _, item := range resp {
		fields, err := DecodeAccount(def, item.Account.Data.GetBinary())
		if err != nil {
			logrus.WithError(err).Warnf("skipping undecodable %s account %s", typeName, item.Pubkey)
			continue
		}
		accounts = append(accounts, ProgramAccount{Pubkey: item.Pubkey, Fields: fields})
	}
	return accounts, nil
}
