package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/woxQAQ/oracle-bridge/internal/addon"
	"github.com/woxQAQ/oracle-bridge/internal/config"
	"github.com/woxQAQ/oracle-bridge/internal/wasm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app is the process-wide state one command runs against.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	runtime *wasm.Runtime
	manager *addon.Manager
}

func newApp(ctx context.Context, flags *rootFlags) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.module != "" {
		cfg.Module = flags.module
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	logger.Debug("Starting oracle-bridge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	runtime, err := wasm.NewRuntime(ctx, logger, &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		runtime: runtime,
		manager: addon.NewManager(cfg, runtime, logger),
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.manager.Shutdown(ctx); err != nil {
		a.logger.Warn("Shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// newLogger builds a development logger for debug and a production
// logger otherwise. Both write to stderr so stdout carries only output.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var zc zap.Config
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}

	return zc.Build()
}

// readInput reads a name or text file, dropping the trailing line break
// editors append.
func readInput(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}
