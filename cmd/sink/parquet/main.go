package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rexbrahh/curve-gateway/observability"
	"github.com/rexbrahh/curve-gateway/sinks/parquet"
)

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
	logger, err := observability.NewLogger("sink-parquet", logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := parquet.ServiceConfigFromEnv()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := parquet.NewService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init service", zap.Error(err))
	}

	logger.Info("parquet sink started",
		zap.String("stream", cfg.Stream),
		zap.String("consumer", cfg.Consumer),
		zap.String("bucket", cfg.Writer.Bucket),
		zap.String("prefix", cfg.Writer.Prefix),
	)
	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("service run failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
