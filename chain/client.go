// Package chain submits program instructions and reads accounts over Solana
// JSON-RPC on behalf of a single service wallet.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/observability"
)

var (
	// ErrAccountNotFound indicates the requested account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrConfirmTimeout indicates the transaction was not confirmed in time.
	ErrConfirmTimeout = errors.New("transaction confirmation timed out")
	// ErrTransactionFailed wraps on-chain execution errors.
	ErrTransactionFailed = errors.New("transaction failed")

	errPending = errors.New("signature pending")
)

// RPC is the subset of the JSON-RPC client used by Client. *rpc.Client satisfies it.
type RPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
}

// Option customises Client behaviour.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetricsRegisterer registers client metrics on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = newClientMetrics(reg)
	}
}

// WithPollInterval overrides the initial confirmation poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// Client signs with one wallet and talks to one RPC endpoint.
type Client struct {
	rpc            RPC
	wallet         solana.PrivateKey
	commitment     rpc.CommitmentType
	skipPreflight  bool
	confirmTimeout time.Duration
	pollInterval   time.Duration
	breaker        *gobreaker.CircuitBreaker
	metrics        *clientMetrics
	logger         *zap.Logger
}

// Dial builds a Client against cfg.RPCURL using the configured wallet.
func Dial(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wallet, err := LoadWallet(cfg)
	if err != nil {
		return nil, err
	}
	return New(rpc.New(cfg.RPCURL), wallet, cfg, opts...), nil
}

// New wraps an existing RPC implementation.
func New(client RPC, wallet solana.PrivateKey, cfg Config, opts ...Option) *Client {
	c := &Client{
		rpc:            client,
		wallet:         wallet,
		commitment:     rpc.CommitmentType(cfg.Commitment),
		skipPreflight:  cfg.SkipPreflight,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   500 * time.Millisecond,
		logger:         zap.NewNop(),
	}
	if c.commitment == "" {
		c.commitment = defaultCommitment
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = defaultConfirmTimeout
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.metrics == nil {
		c.metrics = newClientMetrics(nil)
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "solana-rpc",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("rpc circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			c.metrics.breakerState.Set(float64(to))
		},
	})
	return c
}

// PublicKey returns the wallet address that pays for and signs transactions.
func (c *Client) PublicKey() solana.PublicKey {
	return c.wallet.PublicKey()
}

// Send builds, signs and submits one transaction carrying ixs, then waits for
// confirmation. The signature is returned even when confirmation fails.
func (c *Client) Send(ctx context.Context, ixs ...solana.Instruction) (solana.Signature, error) {
	if len(ixs) == 0 {
		return solana.Signature{}, fmt.Errorf("no instructions to send")
	}

	latest, err := execute(c, "getLatestBlockhash", func() (*rpc.GetLatestBlockhashResult, error) {
		return c.rpc.GetLatestBlockhash(ctx, c.commitment)
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if latest == nil || latest.Value == nil {
		return solana.Signature{}, fmt.Errorf("get latest blockhash: empty response")
	}

	payer := c.wallet.PublicKey()
	tx, err := solana.NewTransaction(ixs, latest.Value.Blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if payer.Equals(key) {
			return &c.wallet
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := execute(c, "sendTransaction", func() (solana.Signature, error) {
		return c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			SkipPreflight:       c.skipPreflight,
			PreflightCommitment: c.commitment,
		})
	})
	if err != nil {
		c.metrics.txSubmitted.WithLabelValues("rejected").Inc()
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}

	started := time.Now()
	if err := c.waitForConfirmation(ctx, sig); err != nil {
		c.metrics.txSubmitted.WithLabelValues("unconfirmed").Inc()
		return sig, err
	}
	c.metrics.txSubmitted.WithLabelValues("confirmed").Inc()
	c.metrics.confirmSeconds.Observe(time.Since(started).Seconds())
	c.logger.Debug("transaction confirmed", zap.Stringer("signature", sig))
	return sig, nil
}

func (c *Client) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.pollInterval
	policy.MaxInterval = 4 * c.pollInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		result, err := execute(c, "getSignatureStatuses", func() (*rpc.GetSignatureStatusesResult, error) {
			return c.rpc.GetSignatureStatuses(ctx, true, sig)
		})
		if err != nil {
			return err
		}
		if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
			return errPending
		}
		status := result.Value[0]
		if status.Err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrTransactionFailed, sig, status.Err))
		}
		switch status.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
		return errPending
	}, backoff.WithContext(policy, ctx))

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrConfirmTimeout, sig)
	}
	return err
}

// Account fetches raw account data at the configured commitment.
func (c *Client) Account(ctx context.Context, address solana.PublicKey) ([]byte, error) {
	info, err := execute(c, "getAccountInfo", func() (*rpc.GetAccountInfoResult, error) {
		out, err := c.rpc.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Commitment: c.commitment,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	return info.Value.Data.GetBinary(), nil
}

// execute runs fn through the circuit breaker and records the outcome.
func execute[T any](c *Client, method string, fn func() (T, error)) (T, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		c.metrics.rpcCalls.WithLabelValues(method, "error").Inc()
		var zero T
		return zero, err
	}
	c.metrics.rpcCalls.WithLabelValues(method, "ok").Inc()
	return out.(T), nil
}

type clientMetrics struct {
	rpcCalls       *prometheus.CounterVec
	breakerState   prometheus.Gauge
	txSubmitted    *prometheus.CounterVec
	confirmSeconds prometheus.Histogram
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	factory := promauto.With(observability.Registerer(reg))
	return &clientMetrics{
		rpcCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "chain",
			Name:      observability.MetricRPCCallsTotal,
			Help:      "JSON-RPC calls by method and result.",
		}, []string{"method", "result"}),
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: observability.Namespace,
			Subsystem: "chain",
			Name:      observability.MetricRPCBreakerState,
			Help:      "RPC circuit breaker state (0 closed, 1 half-open, 2 open).",
		}),
		txSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: observability.Namespace,
			Subsystem: "chain",
			Name:      observability.MetricTxSubmittedTotal,
			Help:      "Submitted transactions by outcome.",
		}, []string{"result"}),
		confirmSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: observability.Namespace,
			Subsystem: "chain",
			Name:      observability.MetricTxConfirmSeconds,
			Help:      "Time from submission to confirmation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		}),
	}
}
