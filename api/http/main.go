package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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

// poolOperations is the transaction and read surface served over HTTP.
// *pools.Service satisfies it.
type poolOperations interface {
	Initialize(ctx context.Context, req pools.InitializeRequest) (pools.Result, error)
	CreatePool(ctx context.Context, req pools.CreatePoolRequest) (pools.Result, error)
	AddLiquidity(ctx context.Context, req pools.LiquidityRequest) (pools.Result, error)
	RemoveLiquidity(ctx context.Context, req pools.LiquidityRequest) (pools.Result, error)
	Buy(ctx context.Context, req pools.SwapRequest) (pools.Result, error)
	Sell(ctx context.Context, req pools.SwapRequest) (pools.Result, error)
	PoolData(ctx context.Context, mint string) (pools.PoolData, error)
	CurveConfig(ctx context.Context) (pools.CurveConfig, error)
}

// Server bundles dependencies for the HTTP API.
type Server struct {
	router  *chi.Mux
	pools   poolOperations
	candles *candles.Generator
	metrics *httpMetrics
	logger  *zap.Logger
	started time.Time
}

// NewServer constructs a Server with registered routes.
func NewServer(ops poolOperations, gen *candles.Generator, reg *prometheus.Registry, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = observability.NewRegistry()
	}

	s := &Server{
		router:  chi.NewRouter(),
		pools:   ops,
		candles: gen,
		metrics: newHTTPMetrics(reg),
		logger:  logger,
		started: time.Now(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(requestID)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))
	s.router.Use(s.instrument)

	s.router.Get("/healthz", s.healthzHandler)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	s.router.Post("/initialize", s.initializeHandler)
	s.router.Post("/create-pool", s.createPoolHandler)
	s.router.Post("/add-liquidity", s.addLiquidityHandler)
	s.router.Post("/remove-liquidity", s.removeLiquidityHandler)
	s.router.Post("/buy", s.buyHandler)
	s.router.Post("/sell", s.sellHandler)
	s.router.Get("/candlestickdata/{tokenmint}", s.candlesHandler)
	s.router.Get("/poolData/{tokenmint}", s.poolDataHandler)
	s.router.Get("/curveConfig", s.curveConfigHandler)

	return s
}

// Handler exposes the underlying router for integration tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Millisecond).String(),
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) initializeHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.InitializeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.Initialize(r.Context(), req)
	s.respond(w, r, "initialize", res, err)
}

func (s *Server) createPoolHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.CreatePoolRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.CreatePool(r.Context(), req)
	s.respond(w, r, "create-pool", res, err)
}

func (s *Server) addLiquidityHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.LiquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.AddLiquidity(r.Context(), req)
	s.respond(w, r, "add-liquidity", res, err)
}

func (s *Server) removeLiquidityHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.LiquidityRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.RemoveLiquidity(r.Context(), req)
	s.respond(w, r, "remove-liquidity", res, err)
}

func (s *Server) buyHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.SwapRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.Buy(r.Context(), req)
	s.respond(w, r, "buy", res, err)
}

func (s *Server) sellHandler(w http.ResponseWriter, r *http.Request) {
	var req pools.SwapRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.pools.Sell(r.Context(), req)
	s.respond(w, r, "sell", res, err)
}

func (s *Server) poolDataHandler(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "tokenmint")
	data, err := s.pools.PoolData(r.Context(), mint)
	if err != nil {
		s.fail(w, r, "poolData", err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

func (s *Server) curveConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.pools.CurveConfig(r.Context())
	if err != nil {
		s.fail(w, r, "curveConfig", err)
		return
	}
	s.writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) candlesHandler(w http.ResponseWriter, r *http.Request) {
	mint := chi.URLParam(r, "tokenmint")
	if _, err := solana.PublicKeyFromBase58(mint); err != nil {
		s.fail(w, r, "candlestickdata", fmt.Errorf("invalid token mint %q: %w", mint, err))
		return
	}

	history, err := s.candles.Generate(r.Context(), mint)
	if err != nil {
		s.fail(w, r, "candlestickdata", err)
		return
	}
	s.writeJSON(w, http.StatusOK, CandlesResponse{Data: history})
}

// decode reads a JSON body; an empty body decodes as the zero request.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	s.fail(w, r, "decode", fmt.Errorf("invalid request body: %w", err))
	return false
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, op string, res ResultResponse, err error) {
	if err != nil {
		s.fail(w, r, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("operation failed",
		zap.String("op", op),
		zap.String("request_id", r.Header.Get(requestIDHeader)),
		zap.Error(err),
	)
	s.writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := observability.LogConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load log config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger("api-http", logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("api server failed", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpCfg, err := ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("load http config: %w", err)
	}
	chainCfg, err := chain.FromEnv()
	if err != nil {
		return fmt.Errorf("load chain config: %w", err)
	}
	candleCfg, err := candles.FromEnv()
	if err != nil {
		return fmt.Errorf("load candle config: %w", err)
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

	poolOpts := []pools.Option{pools.WithLogger(logger.Named("pools"))}
	genOpts := []candles.Option{
		candles.WithLogger(logger.Named("candles")),
		candles.WithMetricsRegisterer(reg),
	}

	natsCfg, err := natsx.FromEnv()
	switch {
	case errors.Is(err, natsx.ErrDisabled):
		logger.Info("event publishing disabled: NATS_URL not set")
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
		poolOpts = append(poolOpts, pools.WithPublisher(publisher))
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
		logger.Info("redis cache disabled: API_REDIS_ADDR not set")
	case err != nil:
		return fmt.Errorf("init redis cache: %w", err)
	default:
		defer redisCache.Close()
		remote = redisCache
	}
	genOpts = append(genOpts, candles.WithStore(candles.NewCachedStore(candles.NewMemoryStore(), remote, logger)))

	svc := pools.NewService(aiagent.New(programID), client, poolOpts...)
	gen, err := candles.NewGenerator(candleCfg, svc, genOpts...)
	if err != nil {
		return fmt.Errorf("init candle generator: %w", err)
	}

	tracked, err := candleCfg.TrackedMints()
	if err != nil {
		return fmt.Errorf("load tracked mints: %w", err)
	}
	poller := candles.NewPoller(gen, tracked, candleCfg.PollInterval, logger.Named("poller"))

	server := NewServer(svc, gen, reg, httpCfg, logger)
	srv := &http.Server{
		Addr:              httpCfg.ListenAddr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: httpCfg.ReadHeaderTimeout,
	}

	logger.Info("curve gateway starting",
		zap.String("addr", srv.Addr),
		zap.String("program", programID.String()),
		zap.String("wallet", client.PublicKey().String()),
		zap.String("rpc", chainCfg.RPCURL),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return poller.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}
