// Package main runs the permit-to-work API: record workflow routes, the
// risk evaluator and the expiry sweep.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hseptw.io/ptw/internal/app"
	"hseptw.io/ptw/internal/config"
	"hseptw.io/ptw/internal/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ptw-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting HSE permit-to-work server",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Duration("expiry_grace", cfg.Workflow.ExpiryGrace),
		zap.Duration("expiry_sweep_interval", cfg.Workflow.ExpirySweepInterval),
	)

	// Cancelled on SIGINT/SIGTERM; stops detached sweeps and River polling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start background services: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      application.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return serve(ctx, srv, cfg.Server)
}

// serve runs srv until ctx ends, then drains in-flight requests within the
// configured shutdown timeout.
func serve(ctx context.Context, srv *http.Server, cfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() { //nolint:naked-goroutine // the listener outlives every pool
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Listening", zap.String("addr", srv.Addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	logger.Info("HTTP server drained")
	return nil
}
