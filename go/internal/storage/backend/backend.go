// Package backend opens the storage.Store named by configuration.
package backend

import (
	"context"
	"fmt"

	"github.com/mcdev12/vaxgame/go/internal/dbconfig"
	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/mcdev12/vaxgame/go/internal/storage/postgres"
	"github.com/mcdev12/vaxgame/go/internal/storage/sqlite"
	"github.com/rs/zerolog/log"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Driver     string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	SQLitePath string `env:"SQLITE_PATH"    envDefault:"vaxgame.db"`
	DB         dbconfig.Config
}

// Open connects to the configured backend and applies its migrations.
func Open(ctx context.Context, cfg Config) (storage.Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		store, err := postgres.Connect(ctx, cfg.DB.DSN())
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("host", cfg.DB.Host).
			Int("port", cfg.DB.Port).
			Str("database", cfg.DB.Database).
			Msg("connected to postgres")
		return store, nil
	case DriverSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite database")
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
