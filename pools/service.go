// Package pools turns gateway requests into single-instruction transactions
// against the pool program and reads pool state back.
package pools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/events"
	"github.com/rexbrahh/curve-gateway/program/aiagent"
)

const (
	MsgInitialized      = "Initialization successful"
	MsgPoolCreated      = "Pool created successfully"
	MsgLiquidityAdded   = "Liquidity added successfully"
	MsgLiquidityRemoved = "Liquidity removed successfully"
	MsgBuy              = "Buy transaction successful"
	MsgSell             = "Sell transaction successful"

	DefaultFees          = 0.01
	DefaultTokenDecimals = 9
)

var (
	// ErrMissingMint is returned when a request omits tokenMint.
	ErrMissingMint = errors.New("tokenMint is required")
	// ErrMissingAmount is returned when buy or sell omit amount.
	ErrMissingAmount = errors.New("amount is required")
	// ErrNoLiquidity is returned when the scaled token reserve is zero.
	ErrNoLiquidity = errors.New("pool has no token reserve")
)

// Chain submits instructions and reads accounts. *chain.Client satisfies it.
type Chain interface {
	Send(ctx context.Context, ixs ...solana.Instruction) (solana.Signature, error)
	Account(ctx context.Context, address solana.PublicKey) ([]byte, error)
	PublicKey() solana.PublicKey
}

// TxPublisher fans out confirmed transaction events.
type TxPublisher interface {
	PublishTx(ctx context.Context, evt events.TxEvent) error
}

// Option customises Service behaviour.
type Option func(*Service)

// WithPublisher publishes a TxEvent after each confirmed submission.
func WithPublisher(p TxPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenDecimals sets the scale applied to token reserves.
func WithTokenDecimals(decimals uint8) Option {
	return func(s *Service) {
		s.decimals = decimals
	}
}

// Service implements the gateway operations.
type Service struct {
	program   aiagent.Program
	chain     Chain
	publisher TxPublisher
	logger    *zap.Logger
	decimals  uint8
	now       func() time.Time
}

// NewService binds the operations to one program deployment and wallet.
func NewService(program aiagent.Program, chain Chain, opts ...Option) *Service {
	s := &Service{
		program:  program,
		chain:    chain,
		logger:   zap.NewNop(),
		decimals: DefaultTokenDecimals,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Initialize creates the curve configuration with the wallet as admin.
func (s *Service) Initialize(ctx context.Context, req InitializeRequest) (Result, error) {
	fees := DefaultFees
	if req.Fees != nil {
		fees = *req.Fees
	}
	config, _, err := s.program.CurveConfig()
	if err != nil {
		return Result{}, err
	}
	ix, err := s.program.NewInitializeInstruction(aiagent.InitializeAccounts{
		CurveConfig: config,
		Admin:       s.chain.PublicKey(),
	}, fees)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgInitialized, events.TxEvent{
		Kind: events.KindInitialize,
		User: s.chain.PublicKey().String(),
		Fees: fees,
	}, ix)
}

// CreatePool opens a pool for the request mint.
func (s *Service) CreatePool(ctx context.Context, req CreatePoolRequest) (Result, error) {
	mint, err := parseMint(req.TokenMint)
	if err != nil {
		return Result{}, err
	}
	derived, err := s.program.Derive(mint, solana.PublicKey{})
	if err != nil {
		return Result{}, err
	}
	r := resolver{}
	accts := aiagent.CreatePoolAccounts{
		Pool:             r.key("pool", req.Pool, derived.Pool),
		Mint:             mint,
		PoolTokenAccount: r.key("poolTokenAccount", req.PoolTokenAccount, derived.PoolTokenAccount),
		Payer:            r.key("payer", req.Payer, s.chain.PublicKey()),
	}
	if r.err != nil {
		return Result{}, r.err
	}
	ix, err := s.program.NewCreatePoolInstruction(accts)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgPoolCreated, events.TxEvent{
		Kind: events.KindCreatePool,
		Mint: mint.String(),
		User: accts.Payer.String(),
	}, ix)
}

// AddLiquidity deposits liquidity from the request user.
func (s *Service) AddLiquidity(ctx context.Context, req LiquidityRequest) (Result, error) {
	accts, _, err := s.liquidityAccounts(req)
	if err != nil {
		return Result{}, err
	}
	ix, err := s.program.NewAddLiquidityInstruction(accts)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgLiquidityAdded, events.TxEvent{
		Kind: events.KindAddLiquidity,
		Mint: accts.Mint.String(),
		User: accts.User.String(),
	}, ix)
}

// RemoveLiquidity withdraws liquidity. Bump defaults to the SOL vault bump.
func (s *Service) RemoveLiquidity(ctx context.Context, req LiquidityRequest) (Result, error) {
	accts, vaultBump, err := s.liquidityAccounts(req)
	if err != nil {
		return Result{}, err
	}
	bump := vaultBump
	if req.Bump != nil {
		bump = *req.Bump
	}
	ix, err := s.program.NewRemoveLiquidityInstruction(accts, bump)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgLiquidityRemoved, events.TxEvent{
		Kind: events.KindRemoveLiquidity,
		Mint: accts.Mint.String(),
		User: accts.User.String(),
		Bump: &bump,
	}, ix)
}

// Buy swaps amount lamports for pool tokens.
func (s *Service) Buy(ctx context.Context, req SwapRequest) (Result, error) {
	accts, _, err := s.swapAccounts(req)
	if err != nil {
		return Result{}, err
	}
	if req.Amount == nil {
		return Result{}, ErrMissingAmount
	}
	amount := uint64(*req.Amount)
	ix, err := s.program.NewBuyInstruction(accts, amount)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgBuy, events.TxEvent{
		Kind:   events.KindBuy,
		Mint:   accts.Mint.String(),
		User:   accts.User.String(),
		Amount: amount,
	}, ix)
}

// Sell swaps amount pool tokens for SOL. Bump defaults to the SOL vault bump.
func (s *Service) Sell(ctx context.Context, req SwapRequest) (Result, error) {
	accts, vaultBump, err := s.swapAccounts(req)
	if err != nil {
		return Result{}, err
	}
	if req.Amount == nil {
		return Result{}, ErrMissingAmount
	}
	amount := uint64(*req.Amount)
	bump := vaultBump
	if req.Bump != nil {
		bump = *req.Bump
	}
	ix, err := s.program.NewSellInstruction(accts, amount, bump)
	if err != nil {
		return Result{}, err
	}
	return s.submit(ctx, MsgSell, events.TxEvent{
		Kind:   events.KindSell,
		Mint:   accts.Mint.String(),
		User:   accts.User.String(),
		Amount: amount,
		Bump:   &bump,
	}, ix)
}

// PoolData reads the mint's pool and derives the spot price in lamports per
// whole token.
func (s *Service) PoolData(ctx context.Context, rawMint string) (PoolData, error) {
	mint, err := parseMint(rawMint)
	if err != nil {
		return PoolData{}, err
	}
	poolAddr, _, err := s.program.Pool(mint)
	if err != nil {
		return PoolData{}, err
	}
	data, err := s.chain.Account(ctx, poolAddr)
	if err != nil {
		return PoolData{}, err
	}
	pool, err := aiagent.DecodeLiquidityPool(data)
	if err != nil {
		return PoolData{}, err
	}

	scaled := pool.ReserveToken / pow10(s.decimals)
	if scaled == 0 {
		return PoolData{}, fmt.Errorf("%w: %s", ErrNoLiquidity, mint)
	}
	return PoolData{
		ReserveSol:   pool.ReserveSOL,
		ReserveToken: scaled,
		Price:        float64(pool.ReserveSOL) / float64(scaled),
		Pool:         poolAddr.String(),
		TotalSupply:  pool.TotalSupply,
	}, nil
}

// CurveConfig reads the program-wide configuration written by Initialize.
func (s *Service) CurveConfig(ctx context.Context) (CurveConfig, error) {
	addr, _, err := s.program.CurveConfig()
	if err != nil {
		return CurveConfig{}, err
	}
	data, err := s.chain.Account(ctx, addr)
	if err != nil {
		return CurveConfig{}, err
	}
	cfg, err := aiagent.DecodeCurveConfiguration(data)
	if err != nil {
		return CurveConfig{}, err
	}
	return CurveConfig{Address: addr.String(), Fees: cfg.Fees}, nil
}

// Price satisfies candles.PriceSource.
func (s *Service) Price(ctx context.Context, mint string) (float64, error) {
	data, err := s.PoolData(ctx, mint)
	if err != nil {
		return 0, err
	}
	return data.Price, nil
}

func (s *Service) liquidityAccounts(req LiquidityRequest) (aiagent.LiquidityAccounts, uint8, error) {
	mint, err := parseMint(req.TokenMint)
	if err != nil {
		return aiagent.LiquidityAccounts{}, 0, err
	}
	r := resolver{}
	user := r.key("user", req.User, s.chain.PublicKey())
	if r.err != nil {
		return aiagent.LiquidityAccounts{}, 0, r.err
	}
	derived, err := s.program.Derive(mint, user)
	if err != nil {
		return aiagent.LiquidityAccounts{}, 0, err
	}
	accts := aiagent.LiquidityAccounts{
		Pool:             r.key("pool", req.Pool, derived.Pool),
		Mint:             mint,
		PoolTokenAccount: r.key("poolTokenAccount", req.PoolTokenAccount, derived.PoolTokenAccount),
		UserTokenAccount: r.key("userTokenAccount", req.UserTokenAccount, derived.UserTokenAccount),
		SolVault:         r.key("poolSolVault", req.PoolSolVault, derived.SolVault),
		User:             user,
	}
	return accts, derived.SolVaultBump, r.err
}

func (s *Service) swapAccounts(req SwapRequest) (aiagent.SwapAccounts, uint8, error) {
	mint, err := parseMint(req.TokenMint)
	if err != nil {
		return aiagent.SwapAccounts{}, 0, err
	}
	r := resolver{}
	user := r.key("user", req.User, s.chain.PublicKey())
	if r.err != nil {
		return aiagent.SwapAccounts{}, 0, r.err
	}
	derived, err := s.program.Derive(mint, user)
	if err != nil {
		return aiagent.SwapAccounts{}, 0, err
	}
	accts := aiagent.SwapAccounts{
		CurveConfig:      r.key("dexConfigurationAccount", req.DexConfigurationAccount, derived.CurveConfig),
		Pool:             r.key("pool", req.Pool, derived.Pool),
		Mint:             mint,
		PoolTokenAccount: r.key("poolTokenAccount", req.PoolTokenAccount, derived.PoolTokenAccount),
		SolVault:         r.key("poolSolVault", req.PoolSolVault, derived.SolVault),
		UserTokenAccount: r.key("userTokenAccount", req.UserTokenAccount, derived.UserTokenAccount),
		User:             user,
	}
	return accts, derived.SolVaultBump, r.err
}

func (s *Service) submit(ctx context.Context, msg string, evt events.TxEvent, ix solana.Instruction) (Result, error) {
	sig, err := s.chain.Send(ctx, ix)
	if err != nil {
		if !sig.IsZero() {
			return Result{}, fmt.Errorf("%s: %w", sig, err)
		}
		return Result{}, err
	}

	s.logger.Info("transaction confirmed",
		zap.String("kind", string(evt.Kind)),
		zap.String("signature", sig.String()),
		zap.String("mint", evt.Mint),
	)

	if s.publisher != nil {
		evt.Signature = sig.String()
		evt.ProgramID = s.program.ID.String()
		evt.Timestamp = s.now().Unix()
		if err := s.publisher.PublishTx(ctx, evt); err != nil {
			s.logger.Warn("publish tx event failed",
				zap.String("signature", evt.Signature),
				zap.Error(err),
			)
		}
	}
	return Result{Message: msg, Signature: sig.String()}, nil
}

// resolver parses optional base58 overrides, keeping the first error.
type resolver struct {
	err error
}

func (r *resolver) key(field, raw string, fallback solana.PublicKey) solana.PublicKey {
	if raw == "" || r.err != nil {
		return fallback
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		r.err = fmt.Errorf("invalid %s %q: %w", field, raw, err)
		return fallback
	}
	return pk
}

func parseMint(raw string) (solana.PublicKey, error) {
	if raw == "" {
		return solana.PublicKey{}, ErrMissingMint
	}
	mint, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid tokenMint %q: %w", raw, err)
	}
	return mint, nil
}

func pow10(decimals uint8) uint64 {
	if decimals > 19 {
		return math.MaxUint64
	}
	out := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		out *= 10
	}
	return out
}
