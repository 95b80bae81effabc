package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/trellisgw/trellis/internal/console/config"
	"github.com/trellisgw/trellis/internal/console/db"
	"github.com/trellisgw/trellis/internal/console/engine"
	"github.com/trellisgw/trellis/internal/console/eventbus"
)

// App wires the config, persistence, engine, and HTTP transport. The store is
// nil when the console persists through a remote document host.
type App struct {
	cfg          config.ConsoleConfig
	logger       *slog.Logger
	store        db.Store
	engine       engine.Engine
	events       eventbus.Bus
	httpServer   *http.Server
	shutdownWait time.Duration
}

// New constructs the console daemon application.
func New(cfg config.ConsoleConfig, logger *slog.Logger, store db.Store, eng engine.Engine, events eventbus.Bus, mux http.Handler) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}
	if mux == nil {
		mux = http.NewServeMux()
	}

	httpServer := &http.Server{
		Addr:         cfg.APIListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &App{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		engine:       eng,
		events:       events,
		httpServer:   httpServer,
		shutdownWait: 15 * time.Second,
	}, nil
}

// Run starts the HTTP server, blocking until context cancellation.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("api server listening", "addr", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownWait)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("http shutdown", "error", err)
		}
		if a.store != nil {
			if err := a.store.Close(shutdownCtx); err != nil {
				a.logger.Error("store close", "error", err)
			}
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
