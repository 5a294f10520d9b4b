package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"erp-sync-service/internal/api"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/sync"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the scheduler and the pending-push watcher",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger.Log.Info("Starting ERP Sync Service")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := sync.NewScheduler(cfg.Scheduler, a.manager)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer scheduler.Stop()

	if cfg.Realtime.Enabled {
		watcher, err := sync.NewPendingWatcher(cfg.Realtime, cfg.Sync.RetryGrace, a.engine)
		if err != nil {
			return fmt.Errorf("failed to init pending-push watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start pending-push watcher: %w", err)
		}
		defer watcher.Stop()
	}

	handler := api.NewHandler(cfg.Server, a.manager, a.store)
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	return nil
}
