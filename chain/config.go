package chain

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	defaultRPCURL          = rpc.DevNet_RPC
	defaultCommitment      = rpc.CommitmentConfirmed
	defaultConfirmTimeout  = 60 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

// Config captures RPC endpoint, program and wallet settings.
type Config struct {
	RPCURL           string        `env:"SOLANA_RPC_URL"`
	ProgramID        string        `env:"PROGRAM_ID"`
	WalletPrivateKey string        `env:"WALLET_PRIVATE_KEY"`
	WalletKeypair    string        `env:"WALLET_KEYPAIR_PATH"`
	Commitment       string        `env:"SOLANA_COMMITMENT"`
	SkipPreflight    bool          `env:"SOLANA_SKIP_PREFLIGHT"`
	ConfirmTimeout   time.Duration `env:"CONFIRM_TIMEOUT"`
	BreakerFailures  uint32        `env:"RPC_BREAKER_FAILURES"`
	BreakerTimeout   time.Duration `env:"RPC_BREAKER_TIMEOUT"`
}

// DefaultConfig targets devnet with confirmed commitment.
func DefaultConfig() Config {
	return Config{
		RPCURL:          defaultRPCURL,
		Commitment:      string(defaultCommitment),
		ConfirmTimeout:  defaultConfirmTimeout,
		BreakerFailures: defaultBreakerFailures,
		BreakerTimeout:  defaultBreakerTimeout,
	}
}

// Validate ensures required fields are populated.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if c.ProgramID == "" {
		return fmt.Errorf("PROGRAM_ID is required")
	}
	if _, err := solana.PublicKeyFromBase58(c.ProgramID); err != nil {
		return fmt.Errorf("invalid PROGRAM_ID: %w", err)
	}
	if c.WalletPrivateKey == "" && c.WalletKeypair == "" {
		return fmt.Errorf("WALLET_PRIVATE_KEY or WALLET_KEYPAIR_PATH is required")
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("unsupported commitment %q", c.Commitment)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("confirm timeout must be positive")
	}
	if c.BreakerFailures == 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}
	return nil
}

// ProgramKey parses the configured program id.
func (c Config) ProgramKey() (solana.PublicKey, error) {
	return solana.PublicKeyFromBase58(c.ProgramID)
}

// FromEnv overlays environment variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse chain config: %w", err)
	}
	return cfg, cfg.Validate()
}
