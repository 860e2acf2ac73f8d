package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/vaxgame/go/internal/dbconfig"
	"github.com/mcdev12/vaxgame/go/internal/logging"
	"github.com/mcdev12/vaxgame/go/internal/outbox"
	"github.com/mcdev12/vaxgame/go/internal/storage/postgres"
)

type config struct {
	NATSURL          string        `env:"NATS_URL"          envDefault:"nats://localhost:4222"`
	FallbackInterval time.Duration `env:"FALLBACK_INTERVAL" envDefault:"30s"`
	BatchSize        int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	Log              logging.Config
	DB               dbconfig.Config
}

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("parse config")
	}
	logging.Setup(cfg.Log)

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.DB.DSN()
	store, err := postgres.Connect(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer store.Close()
	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Database).
		Msg("connected to database")

	jsCfg := outbox.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	publisher, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	notifier, err := outbox.NewPGNotifier(outbox.NotifierConfig{
		DatabaseURL:   dsn,
		NotifyChannel: postgres.NotifyChannel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox notifier")
	}

	relayCfg := outbox.DefaultConfig()
	relayCfg.FallbackInterval = cfg.FallbackInterval
	relayCfg.BatchSize = cfg.BatchSize
	relay := outbox.NewRelay(store, publisher, clockwork.NewRealClock(), relayCfg, notifier.Wake())

	errCh := make(chan error, 2)
	go func() { errCh <- notifier.Run(ctx) }()
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- relay.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("outbox relay exited unexpectedly")
		}
	}
	log.Info().Msg("graceful shutdown complete")
}
