// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Command voxrelay is the process entrypoint: it loads configuration,
// wires the ARI call-control client and event stream, the prompt
// cache, recordings writer and interaction store, and the call
// orchestrator, then serves a small health/readiness HTTP surface
// alongside the ARI event loop until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/voxrelay/voxrelay/internal/ari"
	"github.com/voxrelay/voxrelay/internal/callorchestrator"
	"github.com/voxrelay/voxrelay/internal/commons"
	"github.com/voxrelay/voxrelay/internal/config"
	"github.com/voxrelay/voxrelay/internal/promptcache"
	"github.com/voxrelay/voxrelay/internal/recordings"
	"github.com/voxrelay/voxrelay/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("voxrelay: load config: %w", err)
	}

	logger, err := commons.NewApplicationLogger(commons.Name(cfg.Name), commons.Level(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("voxrelay: build logger: %w", err)
	}
	defer logger.Sync()

	cache, err := promptcache.New(logger)
	if err != nil {
		return fmt.Errorf("voxrelay: build prompt cache: %w", err)
	}

	interactionStore, err := buildStore(logger, cfg)
	if err != nil {
		return fmt.Errorf("voxrelay: build interaction store: %w", err)
	}

	recordingsWriter := recordings.New(logger, ".")

	ariClient := ari.NewClient(logger, ari.Config{
		URL:      cfg.ARIURL,
		Username: cfg.ARIUsername,
		Password: cfg.ARIPassword,
		AppName:  cfg.ARIAppName,
	})

	events, err := ari.DialEvents(logger, ari.Config{
		URL:      cfg.ARIURL,
		Username: cfg.ARIUsername,
		Password: cfg.ARIPassword,
		AppName:  cfg.ARIAppName,
	})
	if err != nil {
		return fmt.Errorf("voxrelay: dial ari event stream: %w", err)
	}
	defer events.Close()

	orchestrator := callorchestrator.New(logger, ariClient, events, cfg, callorchestrator.OrchestratorDeps{
		Cache:            cache,
		InteractionStore: interactionStore,
		RecordingsWriter: recordingsWriter,
		ExternalMediaIP:  cfg.ExternalMediaServerIP,
		PortLo:           cfg.ExternalMediaServerPortLo,
		PortHi:           cfg.ExternalMediaServerPortHi,
	})

	httpServer := buildHTTPServer(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		orchestrator.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Infow("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Infow("shutdown signal received, draining")
		if err := events.Close(); err != nil {
			logger.Warnw("ari event stream close failed", "error", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("http server shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Infow("voxrelay exiting cleanly")
	return nil
}

// buildStore selects a real Postgres-backed interaction store when
// DATABASE_DSN is configured, or falls back to the logging no-op store
// so a call still completes when persistence hasn't been provisioned.
func buildStore(logger commons.Logger, cfg *config.AppConfig) (store.InteractionStore, error) {
	if cfg.DatabaseDSN == "" {
		return store.NewNoopStore(logger), nil
	}
	return store.NewPostgresStore(logger, cfg.DatabaseDSN)
}

// buildHTTPServer mirrors the teacher's gin-based health/readiness
// route registration (router.HealthCheckRoutes) for the operational
// surface this process exposes to its orchestrator/load balancer.
func buildHTTPServer(cfg *config.AppConfig, logger commons.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readiness", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}
}
