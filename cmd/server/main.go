// Package main is the entry point for the Astrolabe routing service.
// It wires configuration, the dependency container, the scheduler, and
// the HTTP server, then runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/di"
	"github.com/astrolabe-io/astrolabe/internal/server"
	"github.com/astrolabe-io/astrolabe/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use a fallback logger so the configuration error is still logged
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("port", cfg.Port).
		Str("horizon", cfg.HorizonURL).
		Str("data_dir", cfg.DataDir).
		Msg("Starting Astrolabe")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	if err := container.AssetService.EnsureNative(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed native asset")
	}

	container.Scheduler.Start()

	// Kick off the first graph build shortly after boot so queries during
	// the readiness grace period have a build to wait for
	go func() {
		time.Sleep(time.Second)
		if err := container.GraphBuilder.Rebuild(context.Background()); err != nil {
			log.Error().Err(err).Msg("Initial graph build failed")
		}
	}()

	srv := server.New(container)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Astrolabe stopped")
}
