package aiagent

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	curveConfigurationDisc = AccountDiscriminator("CurveConfiguration")
	liquidityPoolDisc      = AccountDiscriminator("LiquidityPool")
)

const (
	curveConfigurationSize = 8 + 8
	liquidityPoolSize      = 8 + 32 + 32 + 8 + 8 + 8 + 1
)

// CurveConfiguration is the global program configuration.
type CurveConfiguration struct {
	Fees float64
}

// LiquidityPool is the per-mint pool state.
type LiquidityPool struct {
	Creator      solana.PublicKey
	Token        solana.PublicKey
	TotalSupply  uint64
	ReserveToken uint64
	ReserveSOL   uint64
	Bump         uint8
}

// DecodeCurveConfiguration parses raw CurveConfiguration account data.
func DecodeCurveConfiguration(data []byte) (CurveConfiguration, error) {
	var out CurveConfiguration
	if err := decodeAccount(data, curveConfigurationDisc, curveConfigurationSize, &out); err != nil {
		return CurveConfiguration{}, fmt.Errorf("curve configuration: %w", err)
	}
	return out, nil
}

// DecodeLiquidityPool parses raw LiquidityPool account data.
func DecodeLiquidityPool(data []byte) (LiquidityPool, error) {
	var out LiquidityPool
	if err := decodeAccount(data, liquidityPoolDisc, liquidityPoolSize, &out); err != nil {
		return LiquidityPool{}, fmt.Errorf("liquidity pool: %w", err)
	}
	return out, nil
}

// EncodeLiquidityPool produces account bytes for pool, discriminator included.
func EncodeLiquidityPool(pool LiquidityPool) ([]byte, error) {
	return encode(liquidityPoolDisc, pool)
}

func decodeAccount(data []byte, disc [8]byte, minSize int, out any) error {
	if len(data) < minSize {
		return fmt.Errorf("%w: %d bytes, need %d", ErrInvalidAccount, len(data), minSize)
	}
	if !bytes.Equal(data[:8], disc[:]) {
		return fmt.Errorf("%w: discriminator mismatch", ErrInvalidAccount)
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	return nil
}
