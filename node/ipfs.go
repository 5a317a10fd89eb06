package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const defaultPinataPinURL = "https://api.pinata.cloud/pinning/pinJSONToIPFS"

// IpfsClient reads job definitions through an HTTP gateway and pins result
// artifacts through Pinata. It is not an IPFS node.
type IpfsClient struct {
	Gateway   string
	PinataJWT string

	http   *http.Client
	pinURL string
}

func NewIpfsClient(gateway, pinataJWT string) *IpfsClient {
	return &IpfsClient{
		Gateway:   strings.TrimSuffix(gateway, "/"),
		PinataJWT: pinataJWT,
		http:      &http.Client{Timeout: 30 * time.Second},
		pinURL:    defaultPinataPinURL,
	}
}

// CidToBytes decodes a CIDv0 string ("Qm...") into its 32-byte sha256
// digest, the form job and result hashes travel on-chain in.
func CidToBytes(s string) ([]byte, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode CID %q: %w", s, err)
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to decode multihash of %q: %w", s, err)
	}
	if decoded.Code != multihash.SHA2_256 || decoded.Length != 32 {
		return nil, fmt.Errorf("unsupported CID hash in %q: code %d length %d", s, decoded.Code, decoded.Length)
	}
	return decoded.Digest, nil
}

// BytesToCid rebuilds the CIDv0 string from a 32-byte sha256 digest by
// prefixing the 0x12 0x20 multihash header.
func BytesToCid(digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", fmt.Errorf("expected a 32-byte digest, got %d bytes", len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return "", fmt.Errorf("failed to encode multihash: %w", err)
	}
	return cid.NewCidV0(mh).String(), nil
}

// Get downloads the content behind a CID from the configured gateway.
func (c *IpfsClient) Get(ctx context.Context, cidStr string) ([]byte, error) {
	url := c.Gateway + "/" + cidStr
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call IPFS gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("IPFS gateway returned %s for %s: %s", resp.Status, cidStr, string(body))
	}
	return io.ReadAll(resp.Body)
}

// GetJob downloads and parses the job definition stored behind a CID.
func (c *IpfsClient) GetJob(ctx context.Context, cidStr string) (*JobDefinition, error) {
	body, err := c.Get(ctx, cidStr)
	if err != nil {
		return nil, err
	}
	return ParseJobDefinition(body)
}

// Pin uploads a JSON document to Pinata and returns its CID.
func (c *IpfsClient) Pin(ctx context.Context, v interface{}) (string, error) {
	if c.PinataJWT == "" {
		return "", fmt.Errorf("pinning requires a Pinata JWT")
	}

	payload, err := json.Marshal(map[string]interface{}{"pinataContent": v})
	if err != nil {
		return "", fmt.Errorf("failed to marshal pin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pinURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.PinataJWT)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Pinata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Pinata returned %s: %s", resp.Status, string(body))
	}

	var pinResp struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pinResp); err != nil {
		return "", fmt.Errorf("failed to decode Pinata response: %w", err)
	}
	if pinResp.IpfsHash == "" {
		return "", fmt.Errorf("Pinata response carried no hash")
	}
	return pinResp.IpfsHash, nil
}
