package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rexbrahh/curve-gateway/api/http/cache"
	"github.com/rexbrahh/curve-gateway/candles"
	"github.com/rexbrahh/curve-gateway/chain"
	"github.com/rexbrahh/curve-gateway/observability"
	"github.com/rexbrahh/curve-gateway/pools"
	"github.com/rexbrahh/curve-gateway/program/aiagent"
	natsx "github.com/rexbrahh/curve-gateway/sinks/nats"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	metricsAddr := flag.String("metrics-addr", envOr("CANDLES_METRICS_ADDR", ":9102"), "address serving /metrics (empty disables)")
	once := flag.Bool("once", false, "run a single generation pass and exit")
	flag.Parse()

	logCfg, err := observability.LogConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load log config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger("candles", logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger, *metricsAddr, *once); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("candle worker failed", zap.Error(err))
	}
}

func run(logger *zap.Logger, metricsAddr string, once bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chainCfg, err := chain.FromEnv()
	if err != nil {
		return fmt.Errorf("load chain config: %w", err)
	}
	candleCfg, err := candles.FromEnv()
	if err != nil {
		return fmt.Errorf("load candle config: %w", err)
	}
	tracked, err := candleCfg.TrackedMints()
	if err != nil {
		return fmt.Errorf("load tracked mints: %w", err)
	}
	if len(tracked) == 0 {
		return errors.New("no mints to track: set CANDLE_TRACK_MINTS or CANDLE_TRACK_FILE")
	}

	reg := observability.NewRegistry()
	client, err := chain.Dial(chainCfg,
		chain.WithLogger(logger.Named("chain")),
		chain.WithMetricsRegisterer(reg),
	)
	if err != nil {
		return fmt.Errorf("dial solana rpc: %w", err)
	}
	programID, err := chainCfg.ProgramKey()
	if err != nil {
		return err
	}

	genOpts := []candles.Option{
		candles.WithLogger(logger.Named("generator")),
		candles.WithMetricsRegisterer(reg),
	}

	natsCfg, err := natsx.FromEnv()
	switch {
	case errors.Is(err, natsx.ErrDisabled):
		logger.Warn("candle publishing disabled: NATS_URL not set")
	case err != nil:
		return fmt.Errorf("load nats config: %w", err)
	default:
		publisher, err := natsx.NewPublisher(natsCfg,
			natsx.WithLogger(logger.Named("nats")),
			natsx.WithMetricsRegisterer(reg),
		)
		if err != nil {
			return fmt.Errorf("init nats publisher: %w", err)
		}
		defer publisher.Close()
		genOpts = append(genOpts, candles.WithEmitter(publisher))
	}

	redisCfg, err := cache.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load redis config: %w", err)
	}
	var remote candles.Store
	redisCache, err := cache.New(redisCfg)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Warn("redis cache disabled: series are kept in memory only")
	case err != nil:
		return fmt.Errorf("init redis cache: %w", err)
	default:
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		remote = redisCache
	}
	genOpts = append(genOpts, candles.WithStore(candles.NewCachedStore(candles.NewMemoryStore(), remote, logger)))

	svc := pools.NewService(aiagent.New(programID), client, pools.WithLogger(logger.Named("pools")))
	gen, err := candles.NewGenerator(candleCfg, svc, genOpts...)
	if err != nil {
		return fmt.Errorf("init candle generator: %w", err)
	}
	poller := candles.NewPoller(gen, tracked, candleCfg.PollInterval, logger.Named("poller"))

	if once {
		poller.PollOnce(ctx)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
