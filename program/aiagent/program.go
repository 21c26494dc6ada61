// Package aiagent describes the on-chain bonding-curve pool program: its PDA
// seeds, Anchor instruction layouts and account layouts.
package aiagent

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	SeedCurveConfiguration = "CurveConfiguration"
	SeedLiquidityPool      = "liquidity_pool"
	SeedLiquidityProvider  = "LiqudityProvider"
	SeedPoolSolVault       = "liquidity_sol_vault"
)

// ErrInvalidAccount is returned when account data does not match the expected layout.
var ErrInvalidAccount = errors.New("invalid account data")

// InstructionDiscriminator returns the Anchor selector for a snake_case instruction name.
func InstructionDiscriminator(name string) [8]byte {
	return discriminator("global:" + name)
}

// AccountDiscriminator returns the Anchor prefix for an account type name.
func AccountDiscriminator(name string) [8]byte {
	return discriminator("account:" + name)
}

func discriminator(preimage string) [8]byte {
	hash := sha256.Sum256([]byte(preimage))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// Program derives addresses owned by a deployment of the pool program.
type Program struct {
	ID solana.PublicKey
}

// New returns a Program bound to the given program id.
func New(programID solana.PublicKey) Program {
	return Program{ID: programID}
}

// CurveConfig derives the global curve configuration account.
func (p Program) CurveConfig() (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedCurveConfiguration)}, p.ID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive curve configuration: %w", err)
	}
	return addr, bump, nil
}

// Pool derives the liquidity pool account for a mint.
func (p Program) Pool(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedLiquidityPool), mint.Bytes()}, p.ID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive pool for %s: %w", mint, err)
	}
	return addr, bump, nil
}

// SolVault derives the SOL vault PDA for a mint's pool.
func (p Program) SolVault(mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedPoolSolVault), mint.Bytes()}, p.ID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive sol vault for %s: %w", mint, err)
	}
	return addr, bump, nil
}

// LiquidityProvider derives the per-user provider record. The current
// instruction set does not reference it.
func (p Program) LiquidityProvider(pool, user solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(SeedLiquidityProvider), pool.Bytes(), user.Bytes()}, p.ID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive liquidity provider: %w", err)
	}
	return addr, bump, nil
}

// TokenAccount derives the associated token account of owner for mint.
func TokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account of %s for %s: %w", owner, mint, err)
	}
	return addr, nil
}

// Addresses groups every account derived for a mint, optionally scoped to a user.
type Addresses struct {
	Mint             solana.PublicKey
	CurveConfig      solana.PublicKey
	Pool             solana.PublicKey
	PoolBump         uint8
	PoolTokenAccount solana.PublicKey
	SolVault         solana.PublicKey
	SolVaultBump     uint8
	User             solana.PublicKey
	UserTokenAccount solana.PublicKey
}

// Derive computes the full address set for mint. UserTokenAccount is only
// populated when user is non-zero.
func (p Program) Derive(mint, user solana.PublicKey) (Addresses, error) {
	out := Addresses{Mint: mint, User: user}

	var err error
	if out.CurveConfig, _, err = p.CurveConfig(); err != nil {
		return Addresses{}, err
	}
	if out.Pool, out.PoolBump, err = p.Pool(mint); err != nil {
		return Addresses{}, err
	}
	if out.SolVault, out.SolVaultBump, err = p.SolVault(mint); err != nil {
		return Addresses{}, err
	}
	if out.PoolTokenAccount, err = TokenAccount(out.Pool, mint); err != nil {
		return Addresses{}, err
	}
	if !user.IsZero() {
		if out.UserTokenAccount, err = TokenAccount(user, mint); err != nil {
			return Addresses{}, err
		}
	}
	return out, nil
}
