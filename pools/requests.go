package pools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Amount is a u64 that decodes from a JSON number or a decimal string.
type Amount uint64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		raw = strings.TrimSpace(s)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: must be an unsigned 64-bit integer", raw)
	}
	*a = Amount(v)
	return nil
}

// InitializeRequest configures the curve. Fees defaults to 0.01.
type InitializeRequest struct {
	Fees *float64 `json:"fees,omitempty"`
}

// CreatePoolRequest opens a pool for TokenMint.
type CreatePoolRequest struct {
	Pool             string `json:"pool,omitempty"`
	TokenMint        string `json:"tokenMint"`
	PoolTokenAccount string `json:"poolTokenAccount,omitempty"`
	Payer            string `json:"payer,omitempty"`
}

// LiquidityRequest serves add-liquidity and remove-liquidity. Bump is only
// read by remove-liquidity.
type LiquidityRequest struct {
	Pool             string `json:"pool,omitempty"`
	TokenMint        string `json:"tokenMint"`
	PoolTokenAccount string `json:"poolTokenAccount,omitempty"`
	UserTokenAccount string `json:"userTokenAccount,omitempty"`
	PoolSolVault     string `json:"poolSolVault,omitempty"`
	User             string `json:"user,omitempty"`
	Bump             *uint8 `json:"bump,omitempty"`
}

// SwapRequest serves buy and sell. Bump is only read by sell.
type SwapRequest struct {
	DexConfigurationAccount string  `json:"dexConfigurationAccount,omitempty"`
	Pool                    string  `json:"pool,omitempty"`
	TokenMint               string  `json:"tokenMint"`
	PoolTokenAccount        string  `json:"poolTokenAccount,omitempty"`
	PoolSolVault            string  `json:"poolSolVault,omitempty"`
	UserTokenAccount        string  `json:"userTokenAccount,omitempty"`
	User                    string  `json:"user,omitempty"`
	Amount                  *Amount `json:"amount"`
	Bump                    *uint8  `json:"bump,omitempty"`
}

// Result is returned by every submitting operation.
type Result struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// PoolData reports pool reserves and the derived spot price.
type PoolData struct {
	ReserveSol   uint64  `json:"reserveSol"`
	ReserveToken uint64  `json:"reserveToken"`
	Price        float64 `json:"price"`
	Pool         string  `json:"pool"`
	TotalSupply  uint64  `json:"totalSupply"`
}

// CurveConfig is the decoded global curve configuration account.
type CurveConfig struct {
	Address string  `json:"address"`
	Fees    float64 `json:"fees"`
}
