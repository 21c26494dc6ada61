package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

const privateKeyLen = 64

// ErrNoWallet is returned when neither a secret nor a keypair path is configured.
var ErrNoWallet = errors.New("no wallet configured")

// ParsePrivateKey accepts a solana-keygen JSON byte array or a base58 secret.
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoWallet
	}

	var secret []byte
	if strings.HasPrefix(raw, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("decode secret key array: %w", err)
		}
		secret = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("secret key byte %d out of range: %d", i, v)
			}
			secret[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode base58 secret key: %w", err)
		}
		secret = decoded
	}

	if len(secret) != privateKeyLen {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", privateKeyLen, len(secret))
	}
	return solana.PrivateKey(secret), nil
}

// LoadWallet resolves the signer from the inline secret, falling back to the
// keypair file.
func LoadWallet(cfg Config) (solana.PrivateKey, error) {
	if cfg.WalletPrivateKey != "" {
		return ParsePrivateKey(cfg.WalletPrivateKey)
	}
	if cfg.WalletKeypair != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.WalletKeypair)
		if err != nil {
			return nil, fmt.Errorf("load keypair %s: %w", cfg.WalletKeypair, err)
		}
		return key, nil
	}
	return nil, ErrNoWallet
}
