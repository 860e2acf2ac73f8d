package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/vaxgame/go/internal/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Setup(cfg.Log)
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN is not set, admin routes are disabled")
	}

	table, err := loadCostTable(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load cost table")
	}

	store, err := setupDatabase(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer store.Close()

	services := setupServices(store, table, cfg)
	server := setupServer(cfg, services)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if services.Relay != nil {
		go func() {
			if err := services.Relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("local outbox relay stopped")
			}
		}()
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("storage", cfg.Storage.Driver).Msg("game server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	stopRelay()
	log.Info().Msg("game server stopped")
}
