package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/trellisgw/trellis/internal/console/app"
	"github.com/trellisgw/trellis/internal/console/config"
	"github.com/trellisgw/trellis/internal/console/db"
	"github.com/trellisgw/trellis/internal/console/db/sqlite"
	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/engine"
	"github.com/trellisgw/trellis/internal/console/eventbus"
	"github.com/trellisgw/trellis/internal/console/httpapi"
	"github.com/trellisgw/trellis/internal/console/schemas"
	"github.com/trellisgw/trellis/internal/shared/logging"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logging.New("trellisd")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	var (
		store   db.Store
		gateway docstore.Gateway
	)
	if cfg.DocumentHostURL != "" {
		remote, err := docstore.NewRemote(cfg.DocumentHostURL, cfg.DocumentHostKey, nil)
		if err != nil {
			logger.Error("init remote document host", "error", err)
			os.Exit(1)
		}
		gateway = remote
		logger.Info("documents served by remote host", "endpoint", cfg.DocumentHostURL)
	} else {
		sqlStore, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		store = sqlStore
		gateway = docstore.NewStore(sqlStore)
	}

	events := eventbus.NewMemory()

	eng, err := engine.New(engine.Params{
		Gateway: gateway,
		Schemas: schemas.NewRegistry(),
		Bus:     events,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("init engine", "error", err)
		os.Exit(1)
	}

	handler := httpapi.New(logger, eng, events)

	daemon, err := app.New(cfg, logger, store, eng, events, handler)
	if err != nil {
		logger.Error("init app", "error", err)
		os.Exit(1)
	}

	if err := daemon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon exit", "error", err)
		os.Exit(1)
	}
}
