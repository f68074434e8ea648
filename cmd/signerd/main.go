package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hedera-dev/hedera-hsm-signing/internal/app"
	"github.com/hedera-dev/hedera-hsm-signing/internal/config"
	"github.com/hedera-dev/hedera-hsm-signing/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init signer", zap.Error(err))
		return 1
	}
	defer func() { _ = a.Close() }()

	handle := a.Signer.Handle()
	logger.Info("signer ready",
		zap.String("backend", string(handle.Backend)),
		zap.String("curve", string(handle.Curve)),
		logging.KeyID(handle.KeyID),
	)
	if err := a.Server().Run(ctx); err != nil {
		logger.Error("server exited", zap.Error(err))
		return 1
	}
	return 0
}
