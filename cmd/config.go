package cmd

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	nosana_protocol "nosana-node/solana"
)

const (
	defaultIpfsGateway     = "https://nosana.mypinata.cloud/ipfs"
	defaultSecretsEndpoint = "https://secrets.k8s.prd.nos.ci"
	defaultPollDelay       = 30 * time.Second
)

// Config collects every operator input the node takes from the environment.
type Config struct {
	Network         nosana_protocol.Network
	RpcURL          string
	PrivateKey      solana.PrivateKey
	DummyKey        solana.PrivateKey
	Market          solana.PublicKey
	NftMint         solana.PublicKey
	Collection      solana.PublicKey
	IpfsURL         string
	PinataJWT       string
	PollDelay       time.Duration
	StartJobLoop    bool
	SecretsEndpoint string
}

// LoadConfig reads the .env file and environment. The signer falls back to
// the wallet file, creating one on first run.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info(".env file not found, using environment only")
	}

	cfg := &Config{
		Network:         nosana_protocol.NetworkDevnet,
		IpfsURL:         defaultIpfsGateway,
		PinataJWT:       os.Getenv("PINATA_JWT"),
		PollDelay:       defaultPollDelay,
		StartJobLoop:    true,
		SecretsEndpoint: defaultSecretsEndpoint,
	}

	if network := os.Getenv("SOLANA_NETWORK"); network != "" {
		switch nosana_protocol.Network(network) {
		case nosana_protocol.NetworkMainnet, nosana_protocol.NetworkDevnet:
			cfg.Network = nosana_protocol.Network(network)
		default:
			return nil, fmt.Errorf("unknown SOLANA_NETWORK %q", network)
		}
	}
	cfg.RpcURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.RpcURL == "" {
		cfg.RpcURL = nosana_protocol.DefaultRpcEndpoint(cfg.Network)
	}

	if literal := os.Getenv("SOLANA_PRIVATE_KEY"); literal != "" {
		key, err := nosana_protocol.ParsePrivateKey(literal)
		if err != nil {
			return nil, fmt.Errorf("bad SOLANA_PRIVATE_KEY: %w", err)
		}
		cfg.PrivateKey = key
	} else {
		key, err := nosana_protocol.LoadOrCreateWallet()
		if err != nil {
			return nil, err
		}
		cfg.PrivateKey = key
	}

	if literal := os.Getenv("DUMMY_PRIVATE_KEY"); literal != "" {
		key, err := nosana_protocol.ParsePrivateKey(literal)
		if err != nil {
			return nil, fmt.Errorf("bad DUMMY_PRIVATE_KEY: %w", err)
		}
		cfg.DummyKey = key
	} else {
		cfg.DummyKey = solana.NewWallet().PrivateKey
	}

	market, err := requiredPubkey("NOSANA_MARKET")
	if err != nil {
		return nil, err
	}
	cfg.Market = market

	nft, err := requiredPubkey("NOSANA_NFT")
	if err != nil {
		return nil, err
	}
	cfg.NftMint = nft

	if collection := os.Getenv("NFT_COLLECTION"); collection != "" {
		pk, err := solana.PublicKeyFromBase58(collection)
		if err != nil {
			return nil, fmt.Errorf("bad NFT_COLLECTION: %w", err)
		}
		cfg.Collection = pk
	}

	if gateway := os.Getenv("IPFS_URL"); gateway != "" {
		cfg.IpfsURL = gateway
	}
	if endpoint := os.Getenv("SECRETS_ENDPOINT"); endpoint != "" {
		cfg.SecretsEndpoint = endpoint
	}
	if ms := os.Getenv("POLL_DELAY_MS"); ms != "" {
		delay, err := strconv.Atoi(ms)
		if err != nil || delay <= 0 {
			return nil, fmt.Errorf("bad POLL_DELAY_MS %q", ms)
		}
		cfg.PollDelay = time.Duration(delay) * time.Millisecond
	}
	if start := os.Getenv("START_JOB_LOOP"); start != "" {
		enabled, err := strconv.ParseBool(start)
		if err != nil {
			return nil, fmt.Errorf("bad START_JOB_LOOP %q", start)
		}
		cfg.StartJobLoop = enabled
	}

	return cfg, nil
}

func requiredPubkey(name string) (solana.PublicKey, error) {
	value := os.Getenv(name)
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("bad %s: %w", name, err)
	}
	return pk, nil
}
