package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/vaxgame/go/internal/storage"
	"github.com/mcdev12/vaxgame/go/internal/storage/backend"
)

func setupDatabase(cfg backend.Config) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
	}
	return store, nil
}
