package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metric names are joined as Namespace_<subsystem>_<name>, so names never
// repeat their subsystem.
const (
	Namespace = "curve"

	MetricHTTPRequestsTotal   = "requests_total"
	MetricHTTPRequestDuration = "request_duration_seconds"

	MetricRPCCallsTotal      = "rpc_calls_total"
	MetricRPCBreakerState    = "rpc_breaker_state"
	MetricTxSubmittedTotal   = "tx_submitted_total"
	MetricTxConfirmSeconds   = "tx_confirm_seconds"
	MetricPublisherErrors    = "publisher_errors_total"
	MetricPublisherAcksTotal = "publisher_acks_total"

	MetricCandleSamplesTotal  = "samples_total"
	MetricCandleSampleErrors  = "sample_errors_total"
	MetricCandlesEmittedTotal = "emitted_total"
)

// NewRegistry returns an isolated registry with the Go runtime and process
// collectors already registered.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

// Registerer falls back to a fresh throwaway registry when reg is nil so
// packages can build their collectors unconditionally.
func Registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return prometheus.NewRegistry()
	}
	return reg
}
