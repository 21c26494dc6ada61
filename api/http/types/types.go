package types

import (
	"github.com/rexbrahh/curve-gateway/candles"
	"github.com/rexbrahh/curve-gateway/pools"
)

// HealthResponse represents the shape of /healthz responses.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ResultResponse is returned by every transaction route.
type ResultResponse = pools.Result

// PoolDataResponse is returned by /poolData/{tokenmint}.
type PoolDataResponse = pools.PoolData

// CandlesResponse represents the JSON response from the candle endpoint.
type CandlesResponse struct {
	Data []candles.Candle `json:"data"`
}

// ErrorResponse is a generic API error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}
