package node

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	nosana_protocol "nosana-node/solana"
)

// Account type names as declared by the jobs program IDL.
const (
	accountTypeMarket = "MarketAccount"
	accountTypeJob    = "JobAccount"
	accountTypeRun    = "RunAccount"
)

// Chain is the slice of the Solana client the work loop depends on.
type Chain interface {
	GetBalance(ctx context.Context, publicKey solana.PublicKey) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint solana.PublicKey) (uint64, error)
	FetchAccount(ctx context.Context, program solana.PublicKey, typeName string, address solana.PublicKey) (map[string]interface{}, error)
	FindProgramAccounts(ctx context.Context, program solana.PublicKey, typeName string, fieldEq map[string]interface{}) ([]nosana_protocol.ProgramAccount, error)
	BuildIdlTx(ctx context.Context, program solana.PublicKey, name string, args []interface{}, accounts map[string]solana.PublicKey) (*solana.Transaction, error)
	SendTx(ctx context.Context, tx *solana.Transaction, extraSigners ...solana.PrivateKey) (solana.Signature, error)
	AwaitTx(ctx context.Context, sig solana.Signature, poll time.Duration, maxTries int) (*rpc.GetTransactionResult, error)
}

// Market is the typed view of an on-chain market account.
type Market struct {
	Authority solana.PublicKey
	JobPrice  uint64
	QueueType uint8
	Queue     []solana.PublicKey
}

// Job is the typed view of an on-chain job account.
type Job struct {
	Address    solana.PublicKey
	IpfsJob    []byte
	IpfsResult []byte
	Market     solana.PublicKey
	Payer      solana.PublicKey
	State      uint8
}

// Run is the typed view of a run account: the short-lived record linking a
// worker's claim to a job, closed again by finalization.
type Run struct {
	Address solana.PublicKey
	Job     solana.PublicKey
	Node    solana.PublicKey
	Payer   solana.PublicKey
	Time    int64
}

func pubkeyField(fields map[string]interface{}, name string) (solana.PublicKey, error) {
	v, ok := fields[name]
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("account field %q absent", name)
	}
	pk, ok := v.(solana.PublicKey)
	if !ok {
		return solana.PublicKey{}, fmt.Errorf("account field %q is %T, not a public key", name, v)
	}
	return pk, nil
}

func bytesField(fields map[string]interface{}, name string) []byte {
	if v, ok := fields[name].([]byte); ok {
		return v
	}
	return nil
}

func u64Field(fields map[string]interface{}, name string) uint64 {
	if v, ok := fields[name].(uint64); ok {
		return v
	}
	return 0
}

func u8Field(fields map[string]interface{}, name string) uint8 {
	if v, ok := fields[name].(uint8); ok {
		return v
	}
	return 0
}

func i64Field(fields map[string]interface{}, name string) int64 {
	if v, ok := fields[name].(int64); ok {
		return v
	}
	return 0
}

func marketFromFields(fields map[string]interface{}) (*Market, error) {
	authority, err := pubkeyField(fields, "authority")
	if err != nil {
		return nil, err
	}
	market := &Market{
		Authority: authority,
		JobPrice:  u64Field(fields, "jobPrice"),
		QueueType: u8Field(fields, "queueType"),
	}
	if queue, ok := fields["queue"].([]interface{}); ok {
		for _, entry := range queue {
			if pk, ok := entry.(solana.PublicKey); ok {
				market.Queue = append(market.Queue, pk)
			}
		}
	}
	return market, nil
}

func runFromFields(address solana.PublicKey, fields map[string]interface{}) (*Run, error) {
	job, err := pubkeyField(fields, "job")
	if err != nil {
		return nil, err
	}
	workerNode, err := pubkeyField(fields, "node")
	if err != nil {
		return nil, err
	}
	payer, err := pubkeyField(fields, "payer")
	if err != nil {
		return nil, err
	}
	return &Run{
		Address: address,
		Job:     job,
		Node:    workerNode,
		Payer:   payer,
		Time:    i64Field(fields, "time"),
	}, nil
}

// GetMarket fetches and decodes the configured market account.
func (n *Node) GetMarket(ctx context.Context) (*Market, error) {
	fields, err := n.Chain.FetchAccount(ctx, n.Config.Programs.Jobs, accountTypeMarket, n.Config.Market)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch market %s: %w", n.Config.Market, err)
	}
	return marketFromFields(fields)
}

// IsQueued reports whether this worker sits in the market queue.
func (n *Node) IsQueued(ctx context.Context) (bool, error) {
	market, err := n.GetMarket(ctx)
	if err != nil {
		return false, err
	}
	for _, entry := range market.Queue {
		if entry.Equals(n.Config.Address) {
			return true, nil
		}
	}
	return false, nil
}

// FindMyRuns scans for run accounts claimed by this worker.
func (n *Node) FindMyRuns(ctx context.Context) ([]*Run, error) {
	accounts, err := n.Chain.FindProgramAccounts(ctx, n.Config.Programs.Jobs, accountTypeRun, map[string]interface{}{
		"node": n.Config.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan for runs: %w", err)
	}

	runs := make([]*Run, 0, len(accounts))
	for _, acc := range accounts {
		run, err := runFromFields(acc.Pubkey, acc.Fields)
		if err != nil {
			return nil, fmt.Errorf("malformed run account %s: %w", acc.Pubkey, err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// FetchJob fetches and decodes a job account.
func (n *Node) FetchJob(ctx context.Context, address solana.PublicKey) (*Job, error) {
	fields, err := n.Chain.FetchAccount(ctx, n.Config.Programs.Jobs, accountTypeJob, address)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %s: %w", address, err)
	}
	payer, err := pubkeyField(fields, "payer")
	if err != nil {
		return nil, err
	}
	job := &Job{
		Address:    address,
		IpfsJob:    bytesField(fields, "ipfsJob"),
		IpfsResult: bytesField(fields, "ipfsResult"),
		Payer:      payer,
		State:      u8Field(fields, "state"),
	}
	if market, err := pubkeyField(fields, "market"); err == nil {
		job.Market = market
	}
	return job, nil
}

// ListJob uploads a job definition, pins it, and lists it on the market
// with fresh job and run accounts. Returns the new job address.
func (n *Node) ListJob(ctx context.Context, def *JobDefinition) (solana.PublicKey, error) {
	cidStr, err := n.Ipfs.Pin(ctx, def)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to pin job definition: %w", err)
	}
	digest, err := CidToBytes(cidStr)
	if err != nil {
		return solana.PublicKey{}, err
	}

	jobKey := solana.NewWallet().PrivateKey
	runKey := solana.NewWallet().PrivateKey

	accounts := n.Config.InstructionAccounts(map[string]solana.PublicKey{
		"job": jobKey.PublicKey(),
		"run": runKey.PublicKey(),
	})
	tx, err := n.Chain.BuildIdlTx(ctx, n.Config.Programs.Jobs, "list", []interface{}{digest}, accounts)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to build list transaction: %w", err)
	}
	sig, err := n.Chain.SendTx(ctx, tx, jobKey, runKey)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to send list transaction: %w", err)
	}
	if _, err := n.Chain.AwaitTx(ctx, sig, n.TxPoll, n.TxMaxTries); err != nil {
		return solana.PublicKey{}, fmt.Errorf("list transaction %s did not finalize: %w", sig, err)
	}
	return jobKey.PublicKey(), nil
}
