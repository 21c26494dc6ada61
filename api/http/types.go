package main

import apitypes "github.com/rexbrahh/curve-gateway/api/http/types"

type (
	// HealthResponse aliases the shared type for package-local convenience.
	HealthResponse = apitypes.HealthResponse
	// ResultResponse aliases the transaction route payload.
	ResultResponse = apitypes.ResultResponse
	// PoolDataResponse aliases the pool data payload.
	PoolDataResponse = apitypes.PoolDataResponse
	// CandlesResponse aliases the candle response payload.
	CandlesResponse = apitypes.CandlesResponse
	// ErrorResponse aliases the generic error payload.
	ErrorResponse = apitypes.ErrorResponse
)
