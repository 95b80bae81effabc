package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/trellisgw/trellis/internal/shared/logging"
	"github.com/trellisgw/trellis/internal/vined/app"
	"github.com/trellisgw/trellis/internal/vined/config"
	"github.com/trellisgw/trellis/internal/vined/host"
	"github.com/trellisgw/trellis/internal/vined/httpapi"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("vined")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		logger.Error("ensure state dir", "path", cfg.StateDir, "error", err)
		os.Exit(1)
	}

	store, err := host.NewFileStore(cfg.DocumentPath)
	if err != nil {
		logger.Error("init document store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	handler := httpapi.New(logger, store, cfg.APIKey)
	daemon := app.New(cfg, logger, handler)

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete", "addr", cfg.HTTPListen)
}
