package observability

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the process-wide zap logger.
type LogConfig struct {
	Level string `env:"LOG_LEVEL"`
	// File enables a rotating JSON log file alongside stdout.
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"`
}

// DefaultLogConfig returns info-level stdout logging.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 7,
	}
}

// LogConfigFromEnv overlays environment variables on the defaults.
func LogConfigFromEnv() (LogConfig, error) {
	cfg := DefaultLogConfig()
	if err := env.Parse(&cfg); err != nil {
		return LogConfig{}, fmt.Errorf("parse log config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds a JSON logger named after the component.
func NewLogger(component string, cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if cfg.File != "" {
		rotation := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotation), level))
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return logger.Named(component), nil
}
