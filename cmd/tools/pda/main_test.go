package main

import (
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/curve-gateway/program/aiagent"
)

func TestDeriveWithoutUser(t *testing.T) {
	prog := aiagent.New(solana.NewWallet().PublicKey())
	mint := solana.NewWallet().PublicKey()

	out, err := derive(prog, mint, solana.PublicKey{})
	if err != nil {
		t.Fatalf("derive() error = %v", err)
	}
	pool, bump, err := prog.Pool(mint)
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	if out.Pool != pool.String() || out.PoolBump != bump {
		t.Fatalf("unexpected pool %s/%d", out.Pool, out.PoolBump)
	}
	if out.User != "" || out.UserTokenAccount != "" || out.LiquidityProvider != "" {
		t.Fatalf("expected user fields to be empty: %+v", out)
	}
}

func TestDeriveWithUser(t *testing.T) {
	prog := aiagent.New(solana.NewWallet().PublicKey())
	mint := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()

	out, err := derive(prog, mint, user)
	if err != nil {
		t.Fatalf("derive() error = %v", err)
	}
	ata, err := aiagent.TokenAccount(user, mint)
	if err != nil {
		t.Fatalf("TokenAccount() error = %v", err)
	}
	if out.UserTokenAccount != ata.String() {
		t.Fatalf("user token account = %s, want %s", out.UserTokenAccount, ata)
	}
	if out.LiquidityProvider == "" {
		t.Fatal("expected liquidity provider address")
	}
}
