package node

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nosana-node/storage"
)

func TestFlowPredicates(t *testing.T) {
	flow := &Flow{ID: "f1", Results: map[string]FlowResult{}}
	assert.False(t, flow.Finished())
	assert.False(t, flow.GitFailed())
	_, err := flow.ResultCid()
	assert.ErrorIs(t, err, ErrFlowFailed)

	flow.Results[ResultClone] = FlowResult{Status: FlowStatusError, Error: "auth failed"}
	assert.True(t, flow.GitFailed())

	flow.Results[ResultIpfs] = FlowResult{Status: FlowStatusOk, Value: "QmResult"}
	assert.True(t, flow.Finished())

	cid, err := flow.ResultCid()
	require.NoError(t, err)
	assert.Equal(t, "QmResult", cid)
}

func TestStoreEnginePersistsFlows(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	engine := NewStoreEngine(store, nil)

	flow := &Flow{
		ID:       "run-addr",
		Pipeline: Pipeline{Global: PipelineGlobal{Image: "ubuntu"}},
		Results: map[string]FlowResult{
			ResultJobAddr: {Status: FlowStatusOk, Value: "job-addr"},
		},
	}
	require.NoError(t, engine.Save(flow))
	require.NoError(t, engine.Trigger(context.Background(), flow.ID))

	loaded, err := engine.Load(flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.ID, loaded.ID)
	assert.Equal(t, "ubuntu", loaded.Pipeline.Global.Image)
	assert.Equal(t, "job-addr", loaded.Results[ResultJobAddr].Value)

	_, err = engine.Load("unknown")
	assert.Error(t, err)
}

func TestStoreEngineCompleteJobEffect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"IpfsHash": "QmFailedResult"}`)
	}))
	defer server.Close()

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	ipfs := NewIpfsClient("http://gateway.invalid", "jwt")
	ipfs.pinURL = server.URL
	engine := NewStoreEngine(store, ipfs)

	flow := &Flow{
		ID: "run-addr",
		Results: map[string]FlowResult{
			ResultCheckout: {Status: FlowStatusError, Error: "ref not found"},
		},
	}
	require.NoError(t, engine.Save(flow))

	updated, err := engine.HandleEffect(context.Background(), EffectCompleteJob, flow)
	require.NoError(t, err)
	assert.True(t, updated.Finished())
	assert.Equal(t, "QmFailedResult", updated.Results[ResultIpfs].Value)

	// The recorded result survives a reload, so finalization reads it back.
	reloaded, err := engine.Load(flow.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Finished())

	_, err = engine.HandleEffect(context.Background(), "no-such-effect", flow)
	assert.Error(t, err)
}
