package aiagent

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	initializeDisc      = InstructionDiscriminator("initialize")
	createPoolDisc      = InstructionDiscriminator("create_pool")
	addLiquidityDisc    = InstructionDiscriminator("add_liquidity")
	removeLiquidityDisc = InstructionDiscriminator("remove_liquidity")
	buyDisc             = InstructionDiscriminator("buy")
	sellDisc            = InstructionDiscriminator("sell")
)

// InitializeAccounts are the accounts of the initialize instruction.
type InitializeAccounts struct {
	CurveConfig solana.PublicKey
	Admin       solana.PublicKey
}

// CreatePoolAccounts are the accounts of the create_pool instruction.
type CreatePoolAccounts struct {
	Pool             solana.PublicKey
	Mint             solana.PublicKey
	PoolTokenAccount solana.PublicKey
	Payer            solana.PublicKey
}

// LiquidityAccounts are shared by add_liquidity and remove_liquidity.
type LiquidityAccounts struct {
	Pool             solana.PublicKey
	Mint             solana.PublicKey
	PoolTokenAccount solana.PublicKey
	UserTokenAccount solana.PublicKey
	SolVault         solana.PublicKey
	User             solana.PublicKey
}

// SwapAccounts are shared by buy and sell.
type SwapAccounts struct {
	CurveConfig      solana.PublicKey
	Pool             solana.PublicKey
	Mint             solana.PublicKey
	PoolTokenAccount solana.PublicKey
	SolVault         solana.PublicKey
	UserTokenAccount solana.PublicKey
	User             solana.PublicKey
}

type initializeArgs struct {
	Fees float64
}

type removeLiquidityArgs struct {
	Bump uint8
}

type buyArgs struct {
	Amount uint64
}

type sellArgs struct {
	Amount uint64
	Bump   uint8
}

// NewInitializeInstruction creates the curve configuration with the given fee.
func (p Program) NewInitializeInstruction(accts InitializeAccounts, fees float64) (solana.Instruction, error) {
	data, err := encode(initializeDisc, initializeArgs{Fees: fees})
	if err != nil {
		return nil, fmt.Errorf("encode initialize: %w", err)
	}
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.CurveConfig, true, false),
		solana.NewAccountMeta(accts.Admin, true, true),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(p.ID, metas, data), nil
}

// NewCreatePoolInstruction opens a pool for a mint.
func (p Program) NewCreatePoolInstruction(accts CreatePoolAccounts) (solana.Instruction, error) {
	data, err := encode(createPoolDisc, nil)
	if err != nil {
		return nil, fmt.Errorf("encode create_pool: %w", err)
	}
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Pool, true, false),
		solana.NewAccountMeta(accts.Mint, true, false),
		solana.NewAccountMeta(accts.PoolTokenAccount, true, false),
		solana.NewAccountMeta(accts.Payer, true, true),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
	return solana.NewInstruction(p.ID, metas, data), nil
}

// NewAddLiquidityInstruction deposits the user's liquidity into the pool.
func (p Program) NewAddLiquidityInstruction(accts LiquidityAccounts) (solana.Instruction, error) {
	data, err := encode(addLiquidityDisc, nil)
	if err != nil {
		return nil, fmt.Errorf("encode add_liquidity: %w", err)
	}
	return solana.NewInstruction(p.ID, liquidityMetas(accts), data), nil
}

// NewRemoveLiquidityInstruction withdraws liquidity; bump is the SOL vault bump.
func (p Program) NewRemoveLiquidityInstruction(accts LiquidityAccounts, bump uint8) (solana.Instruction, error) {
	data, err := encode(removeLiquidityDisc, removeLiquidityArgs{Bump: bump})
	if err != nil {
		return nil, fmt.Errorf("encode remove_liquidity: %w", err)
	}
	return solana.NewInstruction(p.ID, liquidityMetas(accts), data), nil
}

// NewBuyInstruction swaps amount lamports into pool tokens.
func (p Program) NewBuyInstruction(accts SwapAccounts, amount uint64) (solana.Instruction, error) {
	data, err := encode(buyDisc, buyArgs{Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("encode buy: %w", err)
	}
	return solana.NewInstruction(p.ID, swapMetas(accts), data), nil
}

// NewSellInstruction swaps amount pool tokens back into SOL.
func (p Program) NewSellInstruction(accts SwapAccounts, amount uint64, bump uint8) (solana.Instruction, error) {
	data, err := encode(sellDisc, sellArgs{Amount: amount, Bump: bump})
	if err != nil {
		return nil, fmt.Errorf("encode sell: %w", err)
	}
	return solana.NewInstruction(p.ID, swapMetas(accts), data), nil
}

func liquidityMetas(accts LiquidityAccounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.Pool, true, false),
		solana.NewAccountMeta(accts.Mint, true, false),
		solana.NewAccountMeta(accts.PoolTokenAccount, true, false),
		solana.NewAccountMeta(accts.UserTokenAccount, true, false),
		solana.NewAccountMeta(accts.SolVault, true, false),
		solana.NewAccountMeta(accts.User, true, true),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
}

func swapMetas(accts SwapAccounts) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(accts.CurveConfig, true, false),
		solana.NewAccountMeta(accts.Pool, true, false),
		solana.NewAccountMeta(accts.Mint, true, false),
		solana.NewAccountMeta(accts.PoolTokenAccount, true, false),
		solana.NewAccountMeta(accts.SolVault, true, false),
		solana.NewAccountMeta(accts.UserTokenAccount, true, false),
		solana.NewAccountMeta(accts.User, true, true),
		solana.NewAccountMeta(solana.SysVarRentPubkey, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
	}
}

func encode(disc [8]byte, args any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if args == nil {
		return buf.Bytes(), nil
	}
	if err := bin.NewBorshEncoder(&buf).Encode(args); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
