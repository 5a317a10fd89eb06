package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrSecretMissing is returned when a requested key is absent from the
// secrets store. The error names the key, never a value.
var ErrSecretMissing = errors.New("secret missing")

// loginPrefix is what the node signs, concatenated with the timestamp, to
// prove key ownership to the secret proxy.
const loginPrefix = "nosana_secret_"

// Client exchanges a signed login for a short-lived bearer token and
// dereferences secret keys through it.
type Client struct {
	Endpoint string
	Signer   solana.PrivateKey

	http  *http.Client
	token string
}

func NewClient(endpoint string, signer solana.PrivateKey) *Client {
	return &Client{
		Endpoint: strings.TrimSuffix(endpoint, "/"),
		Signer:   signer,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Login signs the current timestamp and posts it for a bearer token. The
// optional job address scopes the token to that job's secrets.
func (c *Client) Login(ctx context.Context, job string) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := c.Signer.Sign([]byte(loginPrefix + timestamp))
	if err != nil {
		return fmt.Errorf("failed to sign secrets login: %w", err)
	}

	form := url.Values{}
	form.Set("address", c.Signer.PublicKey().String())
	form.Set("signature", base58.Encode(sig[:]))
	form.Set("timestamp", timestamp)
	if job != "" {
		form.Set("job", job)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call secrets login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("secrets login returned %s: %s", resp.Status, string(body))
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return fmt.Errorf("failed to decode secrets login response: %w", err)
	}
	if loginResp.Token == "" {
		return fmt.Errorf("secrets login returned no token")
	}
	c.token = loginResp.Token
	return nil
}

// Get dereferences a single secret by key, logging in first if no token is
// held yet.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.token == "" {
		if err := c.Login(ctx, ""); err != nil {
			return "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+"/secrets", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call secrets endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("secrets endpoint returned %s", resp.Status)
	}

	var values map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return "", fmt.Errorf("failed to decode secrets response: %w", err)
	}
	value, ok := values[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSecretMissing, key)
	}
	return value, nil
}
