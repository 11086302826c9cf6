package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oi-tracker/internal/api"
	"oi-tracker/internal/httpapi"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/orchestrator"
	"oi-tracker/internal/trace"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(); err != nil {
		logger.ErrorWithErr(context.Background(), "Tracker exited with error", err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	initializeTracing(ctx, cfg)

	st, closeStore, err := initializeSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := api.NewLimiter(cfg.Upstream.MinRequestInterval)
	mgr, provider, err := initializeSession(cfg, limiter, st)
	if err != nil {
		return err
	}
	fetcher := initializeFetcher(cfg, mgr, provider, limiter)

	orch, cal, err := initializeOrchestrator(ctx, cfg, provider, fetcher)
	if err != nil {
		return err
	}
	defer orch.Shutdown()

	boundary, err := orchestrator.NewBoundary(ctx, cal, orch)
	if err != nil {
		return err
	}
	boundary.Start()
	defer boundary.Stop()

	hub := httpapi.NewHub()
	orch.OnSnapshot(hub.Publish)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpapi.NewServer(orch, hub, boundary).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Server running", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	go orch.Startup(context.WithoutCancel(ctx))

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "Shutting down...")
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "HTTP shutdown failed", err)
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithErr(shutdownCtx, "Tracer shutdown failed", err)
	}
	return nil
}
