package main

import (
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/vaxgame/go/internal/costmodel"
	"github.com/mcdev12/vaxgame/go/internal/game"
	"github.com/mcdev12/vaxgame/go/internal/outbox"
	"github.com/mcdev12/vaxgame/go/internal/sessions"
	"github.com/mcdev12/vaxgame/go/internal/settlement"
	"github.com/mcdev12/vaxgame/go/internal/storage"
)

type Services struct {
	Game  *game.Service
	Relay *outbox.Relay // nil unless OUTBOX_LOCAL_RELAY is set
}

func setupServices(store storage.Store, table *costmodel.Table, cfg *Config) *Services {
	// Wire up dependency injection chain
	// Storage → App layer → Service layer
	clock := clockwork.NewRealClock()

	settler := settlement.NewApp(store, table, clock)
	sessionsApp := sessions.NewApp(store, clock)
	gameApp := game.NewApp(store, table, settler, clock)

	services := &Services{
		Game: game.NewService(gameApp, sessionsApp, cfg.AdminToken),
	}
	if cfg.LocalRelay {
		relayCfg := outbox.DefaultConfig()
		relayCfg.FallbackInterval = cfg.RelayInterval
		services.Relay = outbox.NewRelay(store, outbox.LogPublisher{}, clock, relayCfg, nil)
	}
	return services
}
