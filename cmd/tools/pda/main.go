package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/gagliardetto/solana-go"

	"github.com/rexbrahh/curve-gateway/program/aiagent"
)

type output struct {
	ProgramID         string `json:"programId"`
	Mint              string `json:"mint"`
	CurveConfig       string `json:"curveConfig"`
	Pool              string `json:"pool"`
	PoolBump          uint8  `json:"poolBump"`
	PoolTokenAccount  string `json:"poolTokenAccount"`
	PoolSolVault      string `json:"poolSolVault"`
	PoolSolVaultBump  uint8  `json:"poolSolVaultBump"`
	User              string `json:"user,omitempty"`
	UserTokenAccount  string `json:"userTokenAccount,omitempty"`
	LiquidityProvider string `json:"liquidityProvider,omitempty"`
}

func main() {
	programFlag := flag.String("program", os.Getenv("PROGRAM_ID"), "pool program id (defaults to PROGRAM_ID)")
	mintFlag := flag.String("mint", "", "token mint")
	userFlag := flag.String("user", "", "optional user wallet")
	flag.Parse()

	if *programFlag == "" || *mintFlag == "" {
		log.Fatal("program and mint are required")
	}
	programID, err := solana.PublicKeyFromBase58(*programFlag)
	if err != nil {
		log.Fatalf("parse program id: %v", err)
	}
	mint, err := solana.PublicKeyFromBase58(*mintFlag)
	if err != nil {
		log.Fatalf("parse mint: %v", err)
	}
	var user solana.PublicKey
	if *userFlag != "" {
		if user, err = solana.PublicKeyFromBase58(*userFlag); err != nil {
			log.Fatalf("parse user: %v", err)
		}
	}

	out, err := derive(aiagent.New(programID), mint, user)
	if err != nil {
		log.Fatalf("derive addresses: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode output: %v", err)
	}
}

func derive(prog aiagent.Program, mint, user solana.PublicKey) (output, error) {
	addrs, err := prog.Derive(mint, user)
	if err != nil {
		return output{}, err
	}
	out := output{
		ProgramID:        prog.ID.String(),
		Mint:             mint.String(),
		CurveConfig:      addrs.CurveConfig.String(),
		Pool:             addrs.Pool.String(),
		PoolBump:         addrs.PoolBump,
		PoolTokenAccount: addrs.PoolTokenAccount.String(),
		PoolSolVault:     addrs.SolVault.String(),
		PoolSolVaultBump: addrs.SolVaultBump,
	}
	if !user.IsZero() {
		provider, _, err := prog.LiquidityProvider(addrs.Pool, user)
		if err != nil {
			return output{}, err
		}
		out.User = user.String()
		out.UserTokenAccount = addrs.UserTokenAccount.String()
		out.LiquidityProvider = provider.String()
	}
	return out, nil
}
