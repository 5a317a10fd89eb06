package nosana_protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

const (
	defaultConfigDirName = ".nosana"
	walletFileName       = "wallet.json"
)

// ParsePrivateKey reads a keypair from a JSON byte-array literal
// ("[12,34,...]"), the format Solana tooling writes key files in.
func ParsePrivateKey(literal string) (solana.PrivateKey, error) {
	var nums []uint16
	if err := json.Unmarshal([]byte(literal), &nums); err != nil {
		return nil, fmt.Errorf("failed to parse private key literal: %w", err)
	}
	if len(nums) != solana.PrivateKeyLength {
		return nil, fmt.Errorf("invalid private key length: expected %d, got %d", solana.PrivateKeyLength, len(nums))
	}
	raw := make([]byte, len(nums))
	for i, n := range nums {
		if n > 255 {
			return nil, fmt.Errorf("invalid private key byte at index %d: %d", i, n)
		}
		raw[i] = byte(n)
	}
	return solana.PrivateKey(raw), nil
}

// LoadOrCreateWallet loads the node keypair from the default path, creating
// and persisting a fresh one on first run.
func LoadOrCreateWallet() (solana.PrivateKey, error) {
	walletPath, err := getWalletPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet path: %w", err)
	}

	if _, err := os.Stat(walletPath); os.IsNotExist(err) {
		logrus.Infof("no existing wallet found, creating a new one at %s", walletPath)
		return createNewWallet(walletPath)
	} else if err != nil {
		return nil, fmt.Errorf("failed to check for wallet file: %w", err)
	}

	return loadWalletFromFile(walletPath)
}

func createNewWallet(path string) (solana.PrivateKey, error) {
	privateKey := solana.NewWallet().PrivateKey

	if err := saveWalletToFile(privateKey, path); err != nil {
		return nil, fmt.Errorf("failed to save new wallet: %w", err)
	}
	logrus.Infof("new wallet created: %s", privateKey.PublicKey())
	return privateKey, nil
}

func loadWalletFromFile(path string) (solana.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet file: %w", err)
	}
	return ParsePrivateKey(string(raw))
}

func saveWalletToFile(privateKey solana.PrivateKey, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create wallet directory: %w", err)
	}

	// The key file is a JSON array of 64 bytes.
	nums := make([]uint16, len(privateKey))
	for i, b := range privateKey {
		nums[i] = uint16(b)
	}
	raw, err := json.Marshal(nums)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("failed to write wallet file: %w", err)
	}
	return nil
}

func getWalletPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, defaultConfigDirName, walletFileName), nil
}
