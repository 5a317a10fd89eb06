package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"nosana-node/storage"
)

// Result keys the work loop reads from a flow. Everything else a flow
// records belongs to the flow engine.
const (
	ResultJobAddr  = "input/job-addr"
	ResultRunAddr  = "input/run-addr"
	ResultIpfs     = "result/ipfs"
	ResultClone    = "clone"
	ResultCheckout = "checkout"
)

// EffectCompleteJob tells the flow engine to record a failed-result
// artifact for a flow whose git stages errored, so the run can still be
// finalized on-chain.
const EffectCompleteJob = "complete-job"

// ErrFlowFailed is returned when a flow ends in a state the loop cannot
// finalize from.
var ErrFlowFailed = errors.New("flow failed")

// FlowResult is a single recorded step outcome inside a flow.
type FlowResult struct {
	Status string `json:"status"`
	Value  string `json:"value,omitempty"`
	Error  string `json:"error,omitempty"`
}

const (
	FlowStatusOk    = "ok"
	FlowStatusError = "error"
)

// Flow is the record the external flow engine keeps per execution. The
// loop addresses flows by id (the run account address) and only reads the
// results listed above.
type Flow struct {
	ID       string                `json:"id"`
	Pipeline Pipeline              `json:"pipeline"`
	Results  map[string]FlowResult `json:"results"`
}

// Finished reports whether the flow produced a result artifact.
func (f *Flow) Finished() bool {
	r, ok := f.Results[ResultIpfs]
	return ok && r.Status == FlowStatusOk && r.Value != ""
}

// GitFailed reports whether the clone or checkout stage recorded an error.
func (f *Flow) GitFailed() bool {
	for _, key := range []string{ResultClone, ResultCheckout} {
		if r, ok := f.Results[key]; ok && r.Status == FlowStatusError {
			return true
		}
	}
	return false
}

// ResultCid returns the IPFS hash of the finished flow's result artifact.
func (f *Flow) ResultCid() (string, error) {
	if !f.Finished() {
		return "", fmt.Errorf("%w: flow %s has no result", ErrFlowFailed, f.ID)
	}
	return f.Results[ResultIpfs].Value, nil
}

// Engine is the external workflow engine the node drives. The node sends a
// flow off for execution with Trigger, reads state back with Load, and asks
// for compensating effects by name.
type Engine interface {
	Trigger(ctx context.Context, flowID string) error
	Load(flowID string) (*Flow, error)
	Save(flow *Flow) error
	HandleEffect(ctx context.Context, name string, flow *Flow) (*Flow, error)
}

// StoreEngine is the file-backed engine binding: flows are persisted to the
// store where the execution engine picks them up and records results.
type StoreEngine struct {
	Store *storage.Store
	Ipfs  *IpfsClient
}

func NewStoreEngine(store *storage.Store, ipfs *IpfsClient) *StoreEngine {
	return &StoreEngine{Store: store, Ipfs: ipfs}
}

func (e *StoreEngine) Trigger(ctx context.Context, flowID string) error {
	logrus.WithField("flow", flowID).Info("signalling flow engine")
	return nil
}

func (e *StoreEngine) Load(flowID string) (*Flow, error) {
	var flow Flow
	if err := e.Store.Load(flowID, &flow); err != nil {
		return nil, err
	}
	if flow.Results == nil {
		flow.Results = make(map[string]FlowResult)
	}
	return &flow, nil
}

func (e *StoreEngine) Save(flow *Flow) error {
	return e.Store.Save(flow.ID, flow)
}

// HandleEffect dispatches a named compensating effect. complete-job pins
// the flow's recorded step results as a failed-result artifact and stores
// its hash, so finalization proceeds identically to the success path.
func (e *StoreEngine) HandleEffect(ctx context.Context, name string, flow *Flow) (*Flow, error) {
	switch name {
	case EffectCompleteJob:
		if e.Ipfs == nil {
			return nil, fmt.Errorf("cannot run %s effect without an IPFS client", name)
		}
		cid, err := e.Ipfs.Pin(ctx, map[string]interface{}{
			"state":   "failed",
			"results": flow.Results,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to pin failed-result artifact: %w", err)
		}
		flow.Results[ResultIpfs] = FlowResult{Status: FlowStatusOk, Value: cid}
		if err := e.Save(flow); err != nil {
			return nil, err
		}
		return flow, nil
	}
	return nil, fmt.Errorf("unknown flow effect %q", name)
}
