package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/logging"
	"github.com/mcdev12/vaxgame/go/internal/storage/backend"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port           string   `env:"PORT"                 envDefault:"8080"`
	AdminToken     string   `env:"ADMIN_TOKEN"`
	CostTablePath  string   `env:"COST_TABLE_PATH"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	// LocalRelay drains the outbox in-process to the log when no relay
	// binary is deployed next to this server.
	LocalRelay    bool          `env:"OUTBOX_LOCAL_RELAY"     envDefault:"false"`
	RelayInterval time.Duration `env:"OUTBOX_RELAY_INTERVAL"  envDefault:"5s"`
	Log           logging.Config
	Storage       backend.Config
}

func loadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// loadCostTable returns the built-in table unless a YAML override is configured.
func loadCostTable(cfg *Config) (*costmodel.Table, error) {
	if cfg.CostTablePath == "" {
		return costmodel.DefaultTable(), nil
	}
	table, err := costmodel.LoadTable(cfg.CostTablePath)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", cfg.CostTablePath).Msg("loaded cost table")
	return table, nil
}
