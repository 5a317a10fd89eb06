package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCidRoundTrip(t *testing.T) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}

	cidStr, err := BytesToCid(digest)
	require.NoError(t, err)
	// CIDv0 of a sha256 digest is the base58 "Qm..." form.
	assert.True(t, strings.HasPrefix(cidStr, "Qm"), cidStr)

	back, err := CidToBytes(cidStr)
	require.NoError(t, err)
	assert.Equal(t, digest, back)
}

func TestCidToBytesRejectsGarbage(t *testing.T) {
	_, err := CidToBytes("not-a-cid")
	assert.Error(t, err)

	_, err = BytesToCid([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestIpfsGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"hello": "world"}`)
	}))
	defer server.Close()

	client := NewIpfsClient(server.URL+"/", "")

	body, err := client.Get(context.Background(), "QmSomething")
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello": "world"}`, string(body))

	_, err = client.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestIpfsPin(t *testing.T) {
	var gotAuth string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"IpfsHash": "QmPinned"}`)
	}))
	defer server.Close()

	client := NewIpfsClient("http://gateway.invalid", "test-jwt")
	client.http = server.Client()
	// Point the pin call at the test server.
	client.pinURL = server.URL

	cid, err := client.Pin(context.Background(), map[string]string{"state": "failed"})
	require.NoError(t, err)
	assert.Equal(t, "QmPinned", cid)
	assert.Equal(t, "Bearer test-jwt", gotAuth)
	assert.Contains(t, gotBody, "pinataContent")
}

func TestPinWithoutJwt(t *testing.T) {
	client := NewIpfsClient("http://gateway.invalid", "")
	_, err := client.Pin(context.Background(), "x")
	assert.Error(t, err)
}

func TestParseJobDefinition(t *testing.T) {
	raw := `{
	  "state": {"nosana/job-type": "github-flow"},
	  "pipeline": "global:\n  image: registry.hub.docker.com/library/golang\n  trigger:\n    push: main\njobs:\n  - name: test\n    commands:\n      - go test ./...\n    artifacts:\n      - coverage.out\n"
	}`

	def, err := ParseJobDefinition([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "github-flow", def.State["nosana/job-type"])
	assert.Equal(t, "registry.hub.docker.com/library/golang", def.Parsed.Global.Image)
	require.Len(t, def.Parsed.Jobs, 1)
	assert.Equal(t, []string{"go test ./..."}, def.Parsed.Jobs[0].Commands)
	assert.Equal(t, []string{"coverage.out"}, def.Parsed.Jobs[0].Artifacts)
}

func TestParseJobDefinitionErrors(t *testing.T) {
	_, err := ParseJobDefinition([]byte(`{}`))
	assert.Error(t, err)

	_, err = ParseJobDefinition([]byte(`{"pipeline": ":\nnot yaml: ["}`))
	assert.Error(t, err)
}
