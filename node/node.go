package node

import (
	"context"
	"errors"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"

	"nosana-node/secrets"
	nosana_protocol "nosana-node/solana"
)

// Node drives the job lifecycle: poll for claimed runs, execute their
// pipelines through the flow engine, finalize results on-chain, and sit in
// the market queue in between. A single controller goroutine owns all of
// it; nothing here is called concurrently.
type Node struct {
	Chain   Chain
	Config  *nosana_protocol.NodeConfig
	Engine  Engine
	Ipfs    *IpfsClient
	Secrets *secrets.Client

	PollDelay  time.Duration
	TxPoll     time.Duration
	TxMaxTries int

	activeFlow string
}

func NewNode(chain Chain, cfg *nosana_protocol.NodeConfig, engine Engine, ipfs *IpfsClient, sec *secrets.Client, pollDelay time.Duration) *Node {
	if pollDelay <= 0 {
		pollDelay = 30 * time.Second
	}
	return &Node{
		Chain:      chain,
		Config:     cfg,
		Engine:     engine,
		Ipfs:       ipfs,
		Secrets:    sec,
		PollDelay:  pollDelay,
		TxPoll:     time.Second,
		TxMaxTries: 30,
	}
}

// ActiveFlow returns the id of the flow currently being worked, if any.
func (n *Node) ActiveFlow() string {
	return n.activeFlow
}

// Start runs the work loop until a value arrives on exit or the context is
// cancelled. In-flight RPCs are not interrupted; shutdown takes effect at
// the next suspension point.
func (n *Node) Start(ctx context.Context, exit <-chan struct{}) {
	logrus.WithField("market", n.Config.Market).Info("starting work loop")
	for {
		if err := n.Poll(ctx); err != nil {
			logrus.WithError(err).Warn("work loop iteration failed, retrying")
		}

		select {
		case <-exit:
			logrus.Info("work loop received exit signal")
			return
		case <-ctx.Done():
			logrus.Info("work loop context cancelled")
			return
		case <-time.After(n.PollDelay):
		}
	}
}

// Poll runs one iteration of the state machine:
//
//	active flow      → poll it; finalize or keep it
//	claimed run      → start its flow
//	queued           → wait
//	otherwise        → enter the market
func (n *Node) Poll(ctx context.Context) error {
	if n.activeFlow != "" {
		n.activeFlow = n.processFlow(ctx, n.activeFlow)
		return nil
	}

	runs, err := n.FindMyRuns(ctx)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		flowID, err := n.startFlow(ctx, runs[0])
		if err != nil {
			return err
		}
		n.activeFlow = flowID
		return nil
	}

	queued, err := n.IsQueued(ctx)
	if err != nil {
		return err
	}
	if queued {
		logrus.Trace("worker is queued, nothing to do")
		return nil
	}
	return n.enterMarket(ctx)
}

// processFlow polls the active flow and returns the flow id to keep for
// the next iteration ("" once the run is finalized). Transient failures
// keep the same flow so the loop retries it.
func (n *Node) processFlow(ctx context.Context, flowID string) string {
	log := logrus.WithField("flow", flowID)

	flow, err := n.Engine.Load(flowID)
	if err != nil {
		log.WithError(err).Warn("failed to load flow state")
		return flowID
	}

	if flow.GitFailed() && !flow.Finished() {
		log.Info("flow git stage failed, recording failed result")
		if _, err := n.Engine.HandleEffect(ctx, EffectCompleteJob, flow); err != nil {
			log.WithError(err).Warn("complete-job effect failed")
			return flowID
		}
		// Finalization reads the freshly recorded state.
		flow, err = n.Engine.Load(flowID)
		if err != nil {
			log.WithError(err).Warn("failed to reload flow state")
			return flowID
		}
	}

	if !flow.Finished() {
		log.Trace("flow still running")
		return flowID
	}

	if err := n.finishRun(ctx, flow); err != nil {
		if errors.Is(err, nosana_protocol.ErrTimeout) {
			log.Warn("finish transaction timed out, keeping flow for retry")
		} else {
			log.WithError(err).Warn("failed to finalize run, keeping flow for retry")
		}
		return flowID
	}
	log.Info("run finalized")
	return ""
}

// finishRun submits the finish transaction for a finished flow. Safe to
// call twice for the same run: once the run account is closed, the retry
// observes that and reports success.
func (n *Node) finishRun(ctx context.Context, flow *Flow) error {
	runAddr, err := solana.PublicKeyFromBase58(flow.Results[ResultRunAddr].Value)
	if err != nil {
		return err
	}

	fields, err := n.Chain.FetchAccount(ctx, n.Config.Programs.Jobs, accountTypeRun, runAddr)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			logrus.WithField("run", runAddr).Info("run account already closed")
			return nil
		}
		return err
	}
	run, err := runFromFields(runAddr, fields)
	if err != nil {
		return err
	}

	cidStr, err := flow.ResultCid()
	if err != nil {
		return err
	}
	digest, err := CidToBytes(cidStr)
	if err != nil {
		return err
	}

	accounts := n.Config.InstructionAccounts(map[string]solana.PublicKey{
		"job":   run.Job,
		"run":   run.Address,
		"payer": run.Payer,
	})
	tx, err := n.Chain.BuildIdlTx(ctx, n.Config.Programs.Jobs, "finish", []interface{}{digest}, accounts)
	if err != nil {
		return err
	}
	sig, err := n.Chain.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"run": runAddr, "tx": sig}).Info("submitted finish")
	_, err = n.Chain.AwaitTx(ctx, sig, n.TxPoll, n.TxMaxTries)
	return err
}

// startFlow downloads the claimed job's pipeline, persists a new flow and
// signals the engine. The run address doubles as the flow id, so a restart
// resumes the same flow instead of creating a second one.
func (n *Node) startFlow(ctx context.Context, run *Run) (string, error) {
	flowID := run.Address.String()
	log := logrus.WithFields(logrus.Fields{"run": run.Address, "job": run.Job})

	if _, err := n.Engine.Load(flowID); err == nil {
		log.Info("resuming existing flow")
		return flowID, nil
	}

	job, err := n.FetchJob(ctx, run.Job)
	if err != nil {
		return "", err
	}
	cidStr, err := BytesToCid(job.IpfsJob)
	if err != nil {
		return "", err
	}
	def, err := n.Ipfs.GetJob(ctx, cidStr)
	if err != nil {
		return "", err
	}

	flow := &Flow{
		ID:       flowID,
		Pipeline: def.Parsed,
		Results: map[string]FlowResult{
			ResultJobAddr: {Status: FlowStatusOk, Value: run.Job.String()},
			ResultRunAddr: {Status: FlowStatusOk, Value: flowID},
		},
	}
	if err := n.Engine.Save(flow); err != nil {
		return "", err
	}
	if err := n.Engine.Trigger(ctx, flowID); err != nil {
		return "", err
	}
	log.WithField("ipfs", cidStr).Info("started flow for claimed job")
	return flowID, nil
}

// enterMarket submits the work transaction with a fresh run keypair,
// claiming an available job or enqueueing this worker.
func (n *Node) enterMarket(ctx context.Context) error {
	runKey := solana.NewWallet().PrivateKey

	accounts := n.Config.InstructionAccounts(map[string]solana.PublicKey{
		"run": runKey.PublicKey(),
	})
	tx, err := n.Chain.BuildIdlTx(ctx, n.Config.Programs.Jobs, "work", []interface{}{}, accounts)
	if err != nil {
		return err
	}
	sig, err := n.Chain.SendTx(ctx, tx, runKey)
	if err != nil {
		return err
	}
	logrus.WithField("tx", sig).Info("entered market")
	if _, err := n.Chain.AwaitTx(ctx, sig, n.TxPoll, n.TxMaxTries); err != nil {
		return err
	}
	return nil
}

// QuitRun abandons a claimed run without a result, refunding the payer.
func (n *Node) QuitRun(ctx context.Context, run *Run) error {
	accounts := n.Config.InstructionAccounts(map[string]solana.PublicKey{
		"job":   run.Job,
		"run":   run.Address,
		"payer": run.Payer,
	})
	tx, err := n.Chain.BuildIdlTx(ctx, n.Config.Programs.Jobs, "quit", []interface{}{}, accounts)
	if err != nil {
		return err
	}
	sig, err := n.Chain.SendTx(ctx, tx)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"run": run.Address, "tx": sig}).Info("quit run")
	_, err = n.Chain.AwaitTx(ctx, sig, n.TxPoll, n.TxMaxTries)
	return err
}
